package gateway

import (
	"context"
	"io"
	"sync"

	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/service"
)

// MockClient is a mock implementation of service.Gateway for testing.
type MockClient struct {
	// Functions that can be set by tests to control behavior
	ListProjectsFn   func(ctx context.Context) ([]model.Project, error)
	UploadFileFn     func(ctx context.Context, fileName string, content io.Reader) (int64, error)
	GetProjectFn     func(ctx context.Context, id int64) (*model.Project, error)
	PreAnalyzeFn     func(ctx context.Context, id int64) (*model.PreAnalysisResult, error)
	AnalyzeFn        func(ctx context.Context, id int64, mappings map[string]string) (*service.AnalyzeResponse, error)
	RenameProjectFn  func(ctx context.Context, id int64, newName string) error
	DeleteProjectFn  func(ctx context.Context, id int64) error
	DownloadResultFn func(ctx context.Context, taskID, fileName string, dst io.Writer) (int64, error)

	// Call tracking
	UploadCalls     []string
	PreAnalyzeCalls []int64
	AnalyzeCalls    []AnalyzeCall
	RenameCalls     []RenameCall
	DeleteCalls     []int64
	DownloadCalls   []DownloadCall
	ListCalls       int
	GetCalls        int

	mu sync.Mutex
}

// AnalyzeCall records the parameters of an Analyze call.
type AnalyzeCall struct {
	Mappings map[string]string
	ID       int64
}

// RenameCall records the parameters of a RenameProject call.
type RenameCall struct {
	NewName string
	ID      int64
}

// DownloadCall records the parameters of a DownloadResult call.
type DownloadCall struct {
	TaskID   string
	FileName string
}

// NewMockClient creates a new mock gateway.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// ListProjects implements service.Gateway.
func (m *MockClient) ListProjects(ctx context.Context) ([]model.Project, error) {
	m.mu.Lock()
	m.ListCalls++
	fn := m.ListProjectsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return []model.Project{}, nil
}

// UploadFile implements service.Gateway.
func (m *MockClient) UploadFile(ctx context.Context, fileName string, content io.Reader) (int64, error) {
	m.mu.Lock()
	m.UploadCalls = append(m.UploadCalls, fileName)
	fn := m.UploadFileFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, fileName, content)
	}
	return 1, nil
}

// GetProject implements service.Gateway.
func (m *MockClient) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	m.mu.Lock()
	m.GetCalls++
	fn := m.GetProjectFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return &model.Project{ID: id}, nil
}

// PreAnalyze implements service.Gateway.
func (m *MockClient) PreAnalyze(ctx context.Context, id int64) (*model.PreAnalysisResult, error) {
	m.mu.Lock()
	m.PreAnalyzeCalls = append(m.PreAnalyzeCalls, id)
	fn := m.PreAnalyzeFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return &model.PreAnalysisResult{}, nil
}

// Analyze implements service.Gateway.
func (m *MockClient) Analyze(ctx context.Context, id int64, mappings map[string]string) (*service.AnalyzeResponse, error) {
	m.mu.Lock()
	m.AnalyzeCalls = append(m.AnalyzeCalls, AnalyzeCall{ID: id, Mappings: mappings})
	fn := m.AnalyzeFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, mappings)
	}
	return &service.AnalyzeResponse{Result: &model.AnalysisResult{}}, nil
}

// RenameProject implements service.Gateway.
func (m *MockClient) RenameProject(ctx context.Context, id int64, newName string) error {
	m.mu.Lock()
	m.RenameCalls = append(m.RenameCalls, RenameCall{ID: id, NewName: newName})
	fn := m.RenameProjectFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id, newName)
	}
	return nil
}

// DeleteProject implements service.Gateway.
func (m *MockClient) DeleteProject(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, id)
	fn := m.DeleteProjectFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

// DownloadResult implements service.Gateway.
func (m *MockClient) DownloadResult(ctx context.Context, taskID, fileName string, dst io.Writer) (int64, error) {
	m.mu.Lock()
	m.DownloadCalls = append(m.DownloadCalls, DownloadCall{TaskID: taskID, FileName: fileName})
	fn := m.DownloadResultFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, taskID, fileName, dst)
	}
	return 0, nil
}

// ListCount returns the number of ListProjects calls so far.
func (m *MockClient) ListCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListCalls
}

// AnalyzeCount returns the number of Analyze calls so far.
func (m *MockClient) AnalyzeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.AnalyzeCalls)
}

// PreAnalyzeCount returns the number of PreAnalyze calls so far.
func (m *MockClient) PreAnalyzeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PreAnalyzeCalls)
}

// Reset clears all call tracking.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UploadCalls = nil
	m.PreAnalyzeCalls = nil
	m.AnalyzeCalls = nil
	m.RenameCalls = nil
	m.DeleteCalls = nil
	m.DownloadCalls = nil
	m.ListCalls = 0
	m.GetCalls = 0
}

// Ensure MockClient implements service.Gateway.
var _ service.Gateway = (*MockClient)(nil)

package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/susa-must-flow/internal/common"
	"github.com/Veraticus/susa-must-flow/internal/model"
	"github.com/Veraticus/susa-must-flow/internal/session"
)

// fakeSheetsAPI records the calls a Writer makes.
type fakeSheetsAPI struct {
	updates  []sheets.ValueRange
	requests []string
	batches  int
	mu       sync.Mutex
}

func (f *fakeSheetsAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v4/spreadsheets":
			_, _ = io.WriteString(w, `{"spreadsheetId":"new-sheet","spreadsheetUrl":"https://example.com/new","sheets":[{"properties":{"sheetId":7,"title":"KPI"}}]}`)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/"):
			_, _ = io.WriteString(w, `{"spreadsheetId":"existing","sheets":[{"properties":{"sheetId":3,"title":"KPI"}}]}`)
		case strings.HasSuffix(r.URL.Path, ":clear"):
			_, _ = io.WriteString(w, `{}`)
		case strings.HasSuffix(r.URL.Path, ":batchUpdate"):
			f.batches++
			_, _ = io.WriteString(w, `{}`)
		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/values/"):
			var vr sheets.ValueRange
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				t.Errorf("decode update: %v", err)
			}
			f.updates = append(f.updates, vr)
			_, _ = io.WriteString(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestWriter(t *testing.T, cfg Config) (*Writer, *fakeSheetsAPI) {
	t.Helper()
	api := &fakeSheetsAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	svc, err := sheets.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewWriterWithService(svc, cfg, nil), api
}

func sampleResult() *model.AnalysisResult {
	total := model.NewKpiRow(
		model.KpiField{Name: model.FieldGroup, Value: model.GroupTotal},
		model.KpiField{Name: model.FieldRevenue, Value: 1000.0},
		model.KpiField{Name: "EBIT-Marge %", Value: 12.5},
	)
	total.AdditionalData = map[string]float64{"Miete": 300, "Gehälter": 400}
	return &model.AnalysisResult{
		ReportTitle: "KPI Q1",
		KpiResults: []model.KpiRow{
			total,
			model.NewKpiRow(
				model.KpiField{Name: model.FieldGroup, Value: "Vertrieb"},
				model.KpiField{Name: model.FieldRevenue, Value: 400.0},
				model.KpiField{Name: "EBIT-Marge %", Value: 8.0},
			),
		},
	}
}

func TestWriter_ExportCreatesSpreadsheet(t *testing.T) {
	cfg := DefaultConfig()
	w, api := newTestWriter(t, cfg)

	id, err := w.Export(context.Background(), model.Project{ID: 42, OriginalFileName: "Q1.csv"}, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "new-sheet", id)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.updates, 1)
	values := api.updates[0].Values

	assert.Equal(t, []any{"KPI Q1", "Q1.csv"}, values[0])
	assert.Equal(t, []any{model.FieldGroup, model.FieldRevenue, "EBIT-Marge %"}, values[2])
	assert.Equal(t, []any{model.GroupTotal, 1000.0, 12.5}, values[3])
	assert.Equal(t, []any{"Vertrieb", 400.0, 8.0}, values[4])
	assert.Equal(t, []any{model.FieldGroup, "Kategorie", "Betrag"}, values[6])
	assert.Equal(t, []any{model.GroupTotal, "Gehälter", 400.0}, values[7])
	assert.Equal(t, []any{model.GroupTotal, "Miete", 300.0}, values[8])
	assert.Equal(t, 1, api.batches, "formatting is applied once")
}

func TestWriter_ExportBatchesExistingSpreadsheet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpreadsheetID = "existing"
	cfg.BatchSize = 4
	cfg.EnableFormatting = false
	w, api := newTestWriter(t, cfg)

	id, err := w.Export(context.Background(), model.Project{ID: 1}, sampleResult())
	require.NoError(t, err)
	assert.Equal(t, "existing", id)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Len(t, api.updates, 3, "9 rows in batches of 4")
	assert.Zero(t, api.batches)
	assert.Contains(t, api.requests, "GET /v4/spreadsheets/existing")
}

func TestWriter_ExportRejectsEmptyResult(t *testing.T) {
	w, _ := newTestWriter(t, DefaultConfig())
	_, err := w.Export(context.Background(), model.Project{ID: 1}, &model.AnalysisResult{})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBuildReport_MissingCells(t *testing.T) {
	result := &model.AnalysisResult{KpiResults: []model.KpiRow{
		model.NewKpiRow(
			model.KpiField{Name: model.FieldGroup, Value: "A"},
			model.KpiField{Name: model.FieldEBIT, Value: 1.0},
		),
		model.NewKpiRow(model.KpiField{Name: model.FieldGroup, Value: "B"}),
	}}

	r := buildReport(model.Project{}, result)
	assert.Equal(t, "KPI-Analyse", r.values[0][0])
	assert.Equal(t, []any{"B", ""}, r.values[r.kpiStart+1])
	assert.Equal(t, r.breakStart, r.breakEnd)
}

func TestAuthenticateOAuth2Interactive(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "code-1", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	tokenFile := filepath.Join(t.TempDir(), "sheets.json")
	cfg := OAuth2Config{
		Endpoint:     &oauth2.Endpoint{AuthURL: tokenSrv.URL + "/auth", TokenURL: tokenSrv.URL + "/token"},
		ClientID:     "client",
		ClientSecret: "secret",
		ListenAddr:   "127.0.0.1:0",
		TokenFile:    tokenFile,
	}

	announce := func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		callback := q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state")) + "&code=code-1"
		go func() {
			resp, err := http.Get(callback) //nolint:noctx // test browser
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
	}

	tok, err := AuthenticateOAuth2Interactive(context.Background(), cfg, announce)
	require.NoError(t, err)
	assert.Equal(t, "rt", tok.RefreshToken)

	saved, err := session.LoadToken(tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "rt", saved.RefreshToken)
}

func TestAuthenticateOAuth2Interactive_RequiresCredentials(t *testing.T) {
	_, err := AuthenticateOAuth2Interactive(context.Background(), OAuth2Config{}, func(string) {})
	assert.Error(t, err)
}

// Package graphtest runs an in-process stand-in for the Microsoft Graph drive
// and workbook endpoints. It keeps folders, uploads and table rows in memory
// and can be told to fail specific calls.
package graphtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/GBSLIT/FairForm/internal/a1"
	"github.com/GBSLIT/FairForm/internal/config"
)

const (
	DriveID = "drive-1"
	ItemID  = "workbook-1"
	Table   = "Submissions"
	Sheet   = "Sheet1"
	Token   = "test-token"
)

// Upload is one file PUT received by the server.
type Upload struct {
	FolderID    string
	Name        string
	ContentType string
	Size        int
}

// Patch is one range PATCH received by the server.
type Patch struct {
	Sheet    string
	Address  string
	Local    bool
	Formulas []string
}

// Server is a fake Graph endpoint. Set the exported knobs before issuing
// requests; read the recorded calls through the accessor methods.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// Columns is the live table header, in order.
	Columns []string
	// HeaderRow is the worksheet row holding the table header; the body
	// starts on the next row. The table starts in column A.
	HeaderRow int

	// FailCreate rejects folder creation.
	FailCreate bool
	// FailUploadAt rejects the Nth upload attempt (1-based); 0 disables.
	FailUploadAt int
	// FailColumns rejects the column listing.
	FailColumns bool
	// FailAddRow rejects row appends.
	FailAddRow bool
	// RejectFormulas rejects "formulas" payloads; RejectLocal rejects
	// "formulasLocal" payloads.
	RejectFormulas bool
	RejectLocal    bool
	// Delay is slept before answering any request.
	Delay time.Duration

	folders        []string
	uploads        []Upload
	uploadAttempts int
	rows           [][]any
	patches        []Patch
	authHeaders    []string
}

// New starts a fake server with the given table header.
func New(columns ...string) *Server {
	s := &Server{Columns: columns, HeaderRow: 1}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Config returns a configuration pointing every Graph call at the fake.
func (s *Server) Config() *config.Config {
	return &config.Config{
		Address:           ":0",
		TenantID:          "tenant",
		ClientID:          "client",
		ClientSecret:      "secret",
		DriveID:           DriveID,
		WorkbookItemID:    ItemID,
		TableName:         Table,
		GraphBaseURL:      s.URL,
		TokenURL:          s.URL + "/oauth2/token",
		GraphTimeout:      5 * time.Second,
		MaxFileSize:       10 << 20,
		UploadConcurrency: 1,
		Formula: config.FormulaConfig{
			IDColumn:     "ID",
			StatusColumn: "Status",
			BlankToken:   "PENDING",
			SetToken:     "DONE",
			Scope:        "row",
			Strategy:     "column",
		},
	}
}

// Folders returns the names of created folders.
func (s *Server) Folders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.folders...)
}

// Uploads returns the successful uploads in arrival order.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// UploadAttempts counts every upload request, failed ones included.
func (s *Server) UploadAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadAttempts
}

// Rows returns the appended table rows.
func (s *Server) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.rows...)
}

// AddExistingRows seeds the table body with n blank rows.
func (s *Server) AddExistingRows(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.rows = append(s.rows, make([]any, len(s.Columns)))
	}
}

// Patches returns the range patches in arrival order, rejected ones included.
func (s *Server) Patches() []Patch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Patch(nil), s.patches...)
}

// AuthHeaders returns the Authorization header of every Graph request.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeaders...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-r.Context().Done():
			return
		}
	}
	path := r.URL.Path
	if path == "/oauth2/token" {
		s.serveToken(w, r)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authHeaders = append(s.authHeaders, r.Header.Get("Authorization"))

	drive := "/drives/" + DriveID
	item := drive + "/items/" + ItemID
	table := item + "/workbook/tables/" + Table
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(path, drive) && strings.HasSuffix(path, "/children"):
		s.createFolder(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(path, drive+"/items/") && strings.HasSuffix(path, ":/content"):
		s.upload(w, r, strings.TrimSuffix(strings.TrimPrefix(path, drive+"/items/"), ":/content"))
	case r.Method == http.MethodGet && path == table+"/columns":
		s.listColumns(w)
	case r.Method == http.MethodPost && path == table+"/rows/add":
		s.addRow(w, r)
	case r.Method == http.MethodGet && path == table+"/dataBodyRange":
		s.writeRange(w, s.body())
	case r.Method == http.MethodGet && strings.HasPrefix(path, table+"/columns/") && strings.HasSuffix(path, "/dataBodyRange"):
		name := strings.TrimSuffix(strings.TrimPrefix(path, table+"/columns/"), "/dataBodyRange")
		s.columnRange(w, name)
	case r.Method == http.MethodPatch && strings.HasPrefix(path, item+"/workbook/worksheets/"):
		s.patchRange(w, r, strings.TrimPrefix(path, item+"/workbook/worksheets/"))
	default:
		writeError(w, http.StatusNotFound, "itemNotFound", fmt.Sprintf("no route for %s %s", r.Method, path))
	}
}

func (s *Server) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeError(w, http.StatusBadRequest, "invalid_request", "bad token request")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": Token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	if s.FailCreate {
		writeError(w, http.StatusForbidden, "accessDenied", "folder creation denied")
		return
	}
	var body struct {
		Name     string `json:"name"`
		Conflict string `json:"@microsoft.graph.conflictBehavior"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "invalidRequest", "folder name required")
		return
	}
	name := body.Name
	for _, f := range s.folders {
		if f == name && body.Conflict == "rename" {
			name = fmt.Sprintf("%s 1", body.Name)
		}
	}
	s.folders = append(s.folders, name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     fmt.Sprintf("folder-%d", len(s.folders)),
		"name":   name,
		"webUrl": "https://contoso.sharepoint.com/Shared%20Documents/" + name,
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, ref string) {
	s.uploadAttempts++
	folderID, name, ok := strings.Cut(ref, ":/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalidRequest", "malformed upload path")
		return
	}
	if s.FailUploadAt > 0 && s.uploadAttempts == s.FailUploadAt {
		writeError(w, http.StatusInsufficientStorage, "quotaLimitReached", "drive quota exceeded")
		return
	}
	if r.URL.Query().Get("@microsoft.graph.conflictBehavior") == "rename" {
		name = s.freeName(folderID, name)
	}
	data, _ := io.ReadAll(r.Body)
	s.uploads = append(s.uploads, Upload{
		FolderID:    folderID,
		Name:        name,
		ContentType: r.Header.Get("Content-Type"),
		Size:        len(data),
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":   fmt.Sprintf("file-%d", len(s.uploads)),
		"name": name,
	})
}

// freeName mimics OneDrive's rename behaviour: "image.jpg" becomes
// "image 1.jpg", then "image 2.jpg".
func (s *Server) freeName(folderID, name string) string {
	taken := make(map[string]bool)
	for _, u := range s.uploads {
		if u.FolderID == folderID {
			taken[u.Name] = true
		}
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s %d%s", stem, i, ext)
	}
	return name
}

func (s *Server) listColumns(w http.ResponseWriter) {
	if s.FailColumns {
		writeError(w, http.StatusNotFound, "ItemNotFound", "table not found")
		return
	}
	cols := make([]map[string]any, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = map[string]any{"id": fmt.Sprint(i + 1), "name": c, "index": i}
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": cols})
}

func (s *Server) addRow(w http.ResponseWriter, r *http.Request) {
	if s.FailAddRow {
		writeError(w, http.StatusConflict, "EditModeCannotAcquireLock", "workbook is locked")
		return
	}
	var body struct {
		Values [][]any `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Values) != 1 {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "expected one row")
		return
	}
	if len(body.Values[0]) != len(s.Columns) {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "row width does not match the table")
		return
	}
	s.rows = append(s.rows, body.Values[0])
	writeJSON(w, http.StatusCreated, map[string]any{"index": len(s.rows) - 1, "values": body.Values})
}

// body is the table data body range. An empty table still reports one row.
func (s *Server) body() a1.Range {
	rows := len(s.rows)
	if rows == 0 {
		rows = 1
	}
	cols := len(s.Columns)
	if cols == 0 {
		cols = 1
	}
	return a1.Range{
		Sheet: Sheet,
		Start: a1.Cell{Col: 1, Row: s.HeaderRow + 1},
		End:   a1.Cell{Col: cols, Row: s.HeaderRow + rows},
	}
}

func (s *Server) columnRange(w http.ResponseWriter, name string) {
	for i, c := range s.Columns {
		if c == name {
			s.writeRange(w, s.body().Column(i))
			return
		}
	}
	writeError(w, http.StatusNotFound, "ItemNotFound", fmt.Sprintf("column %q not found", name))
}

func (s *Server) writeRange(w http.ResponseWriter, rng a1.Range) {
	writeJSON(w, http.StatusOK, map[string]any{
		"address":     rng.String(),
		"rowCount":    rng.Rows(),
		"columnCount": rng.Cols(),
	})
}

func (s *Server) patchRange(w http.ResponseWriter, r *http.Request, ref string) {
	sheet, rest, ok := strings.Cut(ref, "/range(address='")
	if !ok || !strings.HasSuffix(rest, "')") {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "malformed range path")
		return
	}
	address := strings.TrimSuffix(rest, "')")
	var body struct {
		Formulas      [][]string `json:"formulas"`
		FormulasLocal [][]string `json:"formulasLocal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "malformed body")
		return
	}
	p := Patch{Sheet: sheet, Address: address}
	cells := body.Formulas
	if body.FormulasLocal != nil {
		p.Local = true
		cells = body.FormulasLocal
	}
	for _, row := range cells {
		p.Formulas = append(p.Formulas, strings.Join(row, ""))
	}
	s.patches = append(s.patches, p)
	if (p.Local && s.RejectLocal) || (!p.Local && s.RejectFormulas) {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "The argument is invalid or missing or has an incorrect format.")
		return
	}
	rng, err := a1.Parse(address)
	if err != nil || rng.Rows() != len(cells) {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "range and payload dimensions differ")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": sheet + "!" + address})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}

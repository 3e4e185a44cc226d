package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/codeforge-rag/service/internal/observability"
	"github.com/codeforge-rag/service/internal/retriever"
	"github.com/codeforge-rag/service/internal/service"
)

// Handler binds the service facade to the three HTTP operations spec §6
// documents, plus the root info route.
type Handler struct {
	Facade       *service.Facade
	Logger       *observability.Logger
	Metrics      *observability.MetricsCollector
	ErrorHandler *observability.ErrorHandler
	Version      string
}

// NewHandler builds a Handler. metrics may be nil when metrics are disabled.
func NewHandler(facade *service.Facade, logger *observability.Logger, metrics *observability.MetricsCollector, errorHandler *observability.ErrorHandler, version string) *Handler {
	return &Handler{Facade: facade, Logger: logger, Metrics: metrics, ErrorHandler: errorHandler, Version: version}
}

type rootResponse struct {
	Message     string `json:"message"`
	CORSEnabled bool   `json:"cors_enabled"`
}

// Root serves GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		Message:     "codeforge-rag: ask questions about a GitHub repository's code",
		CORSEnabled: true,
	})
}

type buildEmbeddingsRequest struct {
	Owner  string `json:"owner"`
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"`
}

type buildEmbeddingsResponse struct {
	RepoID           string  `json:"repo_id"`
	Branch           string  `json:"branch"`
	NumFilesIndexed  int     `json:"num_files_indexed"`
	NumChunksIndexed int     `json:"num_chunks_indexed"`
	TookSeconds      float64 `json:"took_seconds"`
}

// BuildEmbeddings serves POST /build_embeddings.
func (h *Handler) BuildEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req buildEmbeddingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	result, err := h.Facade.BuildEmbeddings(r.Context(), req.Owner, req.Repo, req.Branch)
	if err != nil {
		h.fail(w, r, "build_embeddings", err)
		return
	}
	h.Logger.LogIndexOperation(r.Context(), result.RepoID, result.Branch, result.NumFilesIndexed, result.NumChunksIndexed, time.Since(start))

	writeJSON(w, http.StatusOK, buildEmbeddingsResponse{
		RepoID:           result.RepoID,
		Branch:           result.Branch,
		NumFilesIndexed:  result.NumFilesIndexed,
		NumChunksIndexed: result.NumChunksIndexed,
		TookSeconds:      result.TookSeconds,
	})
}

type queryRequest struct {
	Owner     string `json:"owner"`
	Repo      string `json:"repo"`
	Question  string `json:"question"`
	Branch    string `json:"branch,omitempty"`
	TopFiles  int    `json:"top_files,omitempty"`
	TopChunks int    `json:"top_chunks,omitempty"`
}

type referenceResponse struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	URL       string `json:"url"`
}

type queryResponse struct {
	Answer     string              `json:"answer"`
	References []referenceResponse `json:"references"`
}

// Query serves POST /query.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	topFiles := req.TopFiles
	if topFiles <= 0 {
		topFiles = retriever.DefaultTopFiles
	}
	topChunks := req.TopChunks
	if topChunks <= 0 {
		topChunks = retriever.DefaultTopChunks
	}

	start := time.Now()
	result, err := h.Facade.Query(r.Context(), req.Owner, req.Repo, req.Question, req.Branch, topFiles, topChunks)
	if err != nil {
		h.fail(w, r, "query", err)
		return
	}
	h.Logger.LogQuery(r.Context(), result.RepoID, len(result.References), time.Since(start))

	refs := make([]referenceResponse, len(result.References))
	for i, ref := range result.References {
		refs[i] = referenceResponse{
			FilePath:  ref.FilePath,
			StartLine: ref.StartLine,
			EndLine:   ref.EndLine,
			URL:       ref.URL,
		}
	}
	if refs == nil {
		refs = []referenceResponse{}
	}

	writeJSON(w, http.StatusOK, queryResponse{Answer: result.Answer, References: refs})
}

type summarizeRequest struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	Description string `json:"description"`
}

type summarizeResponse struct {
	Summary      string `json:"summary"`
	ProjectPaper string `json:"project_paper"`
	Indexed      bool   `json:"indexed"`
	Branch       string `json:"branch"`
}

// Summarize serves POST /summarize.
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	start := time.Now()
	result, err := h.Facade.Summarize(r.Context(), req.Owner, req.Repo, req.Description)
	if err != nil {
		h.fail(w, r, "summarize", err)
		return
	}
	h.Logger.LogSummarize(r.Context(), result.RepoID, result.Branch, time.Since(start))

	writeJSON(w, http.StatusOK, summarizeResponse{
		Summary:      result.Summary,
		ProjectPaper: result.ProjectPaper,
		Indexed:      result.Indexed,
		Branch:       result.Branch,
	})
}

// fail classifies err against the spec §7 taxonomy, logs/reports it, and
// writes the mapped status code and body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, route string, err error) {
	apiErr := classifyError(err)

	errCtx := observability.ExtractErrorContext(r.Context(), route)
	errCtx.ErrorCode = apiErr.Status
	if apiErr.Status >= 500 {
		errCtx.ErrorType = "internal"
	} else {
		errCtx.ErrorType = "validation"
	}
	h.ErrorHandler.HandleError(r.Context(), err, errCtx)

	writeJSON(w, apiErr.Status, errorBody{Error: apiErr.Message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

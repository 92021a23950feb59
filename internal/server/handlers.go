package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
	"askdocs/internal/pipeline"
)

type AskRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
	Persona  string `json:"persona" validate:"max=100"`
	// Text, when set, replaces the session documents before answering.
	Text string `json:"text"`
}

type SearchRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=100"`
}

// QueryRequest asks several questions against the current documents without
// running the analysis stages.
type QueryRequest struct {
	Questions []string `json:"questions" validate:"required,min=1,max=50,dive,required,max=4000"`
}

type QueryAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// UploadResponse is the ingestion report plus the state of the rebuilt index.
type UploadResponse struct {
	pipeline.IngestReport
	IndexedChunks int    `json:"indexed_chunks"`
	IndexError    string `json:"index_error,omitempty"`
}

type SearchHit struct {
	ChunkID  string  `json:"chunk_id"`
	Section  string  `json:"section,omitempty"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

type DocumentsResponse struct {
	Documents []pipeline.IngestedDocument `json:"documents"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "documents": len(s.session.Documents())})
}

func (s *Server) uploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "multipart form required", err)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		fail(c, http.StatusBadRequest, "no files in field \"files\"", nil)
		return
	}
	files := make([]pipeline.File, 0, len(headers))
	for _, h := range headers {
		data, err := readPart(h)
		if err != nil {
			fail(c, http.StatusBadRequest, "read upload", err)
			return
		}
		files = append(files, pipeline.File{Name: h.Filename, Type: h.Header.Get("Content-Type"), Data: data})
	}

	rep, err := s.session.Ingest(c.Request.Context(), s.extractor, files)
	if err != nil {
		fail(c, statusFor(err), "ingest failed", err)
		return
	}
	if rep.AllFailed() {
		code := http.StatusUnprocessableEntity
		if rep.UnsupportedCount() == len(rep.Failures) {
			code = http.StatusUnsupportedMediaType
		}
		c.AbortWithStatusJSON(code, Response[pipeline.IngestReport]{Code: code, Message: "no document could be extracted", Data: rep})
		return
	}
	resp := UploadResponse{IngestReport: rep}
	n, err := s.session.EnsureIndex(c.Request.Context())
	if err != nil {
		logging.FromContext(c.Request.Context()).Warn("index rebuild after upload failed", "error", err)
		resp.IndexError = err.Error()
	}
	resp.IndexedChunks = n
	success(c, resp)
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.Filename, err)
	}
	return data, nil
}

func (s *Server) listDocuments(c *gin.Context) {
	success(c, DocumentsResponse{Documents: s.session.Documents()})
}

func (s *Server) ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, "validation failed", err)
		return
	}
	if req.Text != "" {
		s.session.SetText(req.Text)
	}
	if len(s.session.Documents()) == 0 {
		fail(c, http.StatusConflict, "no documents uploaded", domain.ErrUnbuiltIndex)
		return
	}

	rep, err := s.orch.Ask(c.Request.Context(), s.session, req.Persona, req.Question)
	if err != nil {
		fail(c, statusFor(err), "run cancelled", err)
		return
	}
	success(c, rep)
}

func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, "validation failed", err)
		return
	}
	if len(s.session.Documents()) == 0 {
		fail(c, http.StatusConflict, "no documents uploaded", domain.ErrUnbuiltIndex)
		return
	}
	ctx := c.Request.Context()
	if _, err := s.session.EnsureIndex(ctx); err != nil {
		fail(c, statusFor(err), "index build failed", err)
		return
	}
	ans, err := s.session.Retriever().Query(ctx, domain.Batch(req.Questions...))
	if err != nil {
		fail(c, statusFor(err), "query failed", err)
		return
	}
	out := make([]QueryAnswer, 0, len(req.Questions))
	for i, a := range ans.Items() {
		out = append(out, QueryAnswer{Question: req.Questions[i], Answer: a})
	}
	success(c, out)
}

func (s *Server) search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		fail(c, http.StatusBadRequest, "validation failed", err)
		return
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	results, err := s.session.Retriever().Search(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		fail(c, statusFor(err), "search failed", err)
		return
	}
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{ChunkID: r.Chunk.ChunkID, Section: r.Chunk.Section, Text: r.Chunk.Text, Distance: r.Distance})
	}
	success(c, hits)
}

func (s *Server) history(c *gin.Context) {
	success(c, s.session.History())
}

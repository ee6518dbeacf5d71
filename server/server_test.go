package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdoc/askdoc/internal/models"
	"github.com/askdoc/askdoc/pkg/rag"
	"github.com/askdoc/askdoc/pkg/retriever"
	"github.com/askdoc/askdoc/pkg/store"
	"github.com/askdoc/askdoc/server"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func (e stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vs, _ := e.EmbedDocuments(ctx, []string{text})
	return vs[0], nil
}

type stubGenerator struct {
	response string
}

func (g stubGenerator) Generate(_ context.Context, _, _ string, _ float64) (string, error) {
	return g.response, nil
}

func newTestServer(t *testing.T, llmResponse string) http.Handler {
	t.Helper()
	backend, err := store.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	st := store.New(backend, stubEmbedder{}, store.StoreConfig{ChunkSize: 200, ChunkOverlap: 40})
	t.Cleanup(func() { st.Close() })

	ret := retriever.New(st, stubEmbedder{}, retriever.DefaultCorpus(), retriever.RetrieverConfig{TopK: 4})
	synth := rag.NewSynthesizer(ret, stubGenerator{response: llmResponse}, rag.SynthesizerConfig{TopK: 4})
	return server.New(server.Config{Addr: ":0"}, st, ret, synth).Routes()
}

func uploadFile(t *testing.T, h http.Handler, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadListDelete(t *testing.T) {
	h := newTestServer(t, `{"answer":"ok","confidence":"high"}`)

	rec := uploadFile(t, h, "report.txt", strings.Repeat("quarterly results improved. ", 30))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		DocumentID string `json:"documentId"`
		FileName   string `json:"fileName"`
		ChunkCount int    `json:"chunkCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "report.txt", created.FileName)
	assert.Greater(t, created.ChunkCount, 1)

	// List includes the new document with its info record.
	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Documents []struct {
			DocumentID string            `json:"documentId"`
			Info       *models.IndexInfo `json:"info"`
		} `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Documents, 1)
	assert.Equal(t, created.DocumentID, listed.Documents[0].DocumentID)
	require.NotNil(t, listed.Documents[0].Info)
	assert.Equal(t, "report.txt", listed.Documents[0].Info.FileName)

	// Delete, then the document is gone.
	req = httptest.NewRequest(http.MethodDelete, "/documents/"+created.DocumentID, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/documents/"+created.DocumentID, nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpload_EmptyDocument(t *testing.T) {
	h := newTestServer(t, "")
	rec := uploadFile(t, h, "blank.txt", "   \n\t ")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAsk(t *testing.T) {
	h := newTestServer(t, `{"answer":"Results improved.","citations":[{"text":"x","source":"report.txt","chunkIndex":0}],"confidence":"high"}`)

	rec := uploadFile(t, h, "report.txt", strings.Repeat("quarterly results improved. ", 30))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		DocumentID string `json:"documentId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := strings.NewReader(`{"documentId":"` + created.DocumentID + `","question":"how were results?"}`)
	req := httptest.NewRequest(http.MethodPost, "/ask", body)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var answer models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "Results improved.", answer.Answer)
	assert.Equal(t, models.ConfidenceHigh, answer.Confidence)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "report.txt", answer.Citations[0].Source)
}

func TestAsk_MissingQuestion(t *testing.T) {
	h := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"documentId":"x"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsk_NoDocumentFallsBackToDefaultCorpus(t *testing.T) {
	h := newTestServer(t, `{"answer":"I answer questions about uploaded documents.","confidence":"medium"}`)
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"what can you do?"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var answer models.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.NotEmpty(t, answer.Answer)
}

func TestSearch(t *testing.T) {
	h := newTestServer(t, "")

	rec := uploadFile(t, h, "report.txt", strings.Repeat("quarterly results improved. ", 30))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		DocumentID string `json:"documentId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/documents/"+created.DocumentID+"/search?q=results&k=2", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Results []models.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
}

func TestSearch_MalformedK(t *testing.T) {
	h := newTestServer(t, "")
	for _, k := range []string{"3abc", "four", "2.5"} {
		req := httptest.NewRequest(http.MethodGet, "/documents/any/search?q=x&k="+k, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "k=%s", k)
	}
}

func TestSearch_UnknownDocument(t *testing.T) {
	h := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/documents/ghost/search?q=x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTopics(t *testing.T) {
	h := newTestServer(t, `["What improved?","Why did it improve?"]`)

	rec := uploadFile(t, h, "report.txt", strings.Repeat("quarterly results improved. ", 30))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		DocumentID string `json:"documentId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/documents/"+created.DocumentID+"/topics", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Topics []string `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"What improved?", "Why did it improve?"}, resp.Topics)
}

func TestTopics_UnknownDocumentStillServesDefaults(t *testing.T) {
	h := newTestServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/documents/ghost/topics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Topics []string `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Topics, 5)
}

package ollama

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docstack/internal/core/domain"
	"github.com/kirillkom/docstack/internal/core/ports"
	"github.com/kirillkom/docstack/internal/infrastructure/resilience"
)

// Client talks to one Ollama instance. The generation, embedding and
// vision models are fixed at construction; adapters below expose the
// core ports on top of it.
type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	visionModel string
	httpClient  *http.Client
	exec        *resilience.Executor
}

func New(baseURL, genModel, embedModel, visionModel string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		exec:        exec,
	}
}

// execute runs fn under the retry/breaker policy when one is configured.
func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.exec == nil {
		return fn(ctx)
	}
	return c.exec.Execute(ctx, operation, fn, classifyOllamaError)
}

var _ ports.Embedder = (*Embedder)(nil)

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.execute(ctx, "ollama_embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, wrapTaxonomy("embed texts", domain.ErrEmbeddingFailed, err)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrEmbeddingFailed, "embed query", errors.New("empty embedding result"))
	}
	return vectors[0], nil
}

var _ ports.DocumentClassifier = (*Classifier)(nil)

type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

// Classify returns one folder label for the sample. The caller treats
// any error or empty label as the Uncategorized fallback.
func (c *Classifier) Classify(ctx context.Context, in domain.ClassifyInput) (string, error) {
	raw, err := c.client.generateText(ctx, "ollama_classify", buildClassifyPrompt(in))
	if err != nil {
		return "", wrapTaxonomy("classify document", domain.ErrClassificationFailed, err)
	}
	return sanitizeLabel(raw), nil
}

var _ ports.AnswerGenerator = (*Generator)(nil)

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question, contextBlock string) (string, error) {
	answer, err := g.client.generateText(ctx, "ollama_generate", buildAnswerPrompt(question, contextBlock))
	if err != nil {
		return "", wrapTaxonomy("generate answer", domain.ErrGenerationFailed, err)
	}
	if answer == "" {
		return "", domain.WrapError(domain.ErrGenerationFailed, "generate answer", errors.New("model returned no text"))
	}
	return answer, nil
}

// Vision describes image payloads with a multimodal model. It backs both
// the image extractor and the scanned-pdf fallback.
type Vision struct {
	client *Client
}

func NewVision(client *Client) *Vision {
	return &Vision{client: client}
}

func (v *Vision) Describe(ctx context.Context, image []byte, mimeType string) (string, error) {
	if v.client.visionModel == "" {
		return "", domain.WrapError(domain.ErrExtractionFailed, "describe image", errors.New("no vision model configured"))
	}
	if len(image) == 0 {
		return "", domain.WrapError(domain.ErrExtractionFailed, "describe image", errors.New("empty image payload"))
	}

	request := map[string]any{
		"model":  v.client.visionModel,
		"prompt": fmt.Sprintf(describeImagePrompt, mimeType),
		"stream": false,
		"images": []string{base64.StdEncoding.EncodeToString(image)},
	}
	var response struct {
		Response string `json:"response"`
	}
	err := v.client.execute(ctx, "ollama_vision", func(ctx context.Context) error {
		return v.client.postJSON(ctx, "/api/generate", request, &response, "vision")
	})
	if err != nil {
		return "", wrapTaxonomy("describe image", domain.ErrExtractionFailed, err)
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) generateText(ctx context.Context, operation, prompt string) (string, error) {
	request := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	err := c.execute(ctx, operation, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/generate", request, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// sanitizeLabel reduces a model response to a bare folder label: first
// line only, wrapping quotes and trailing punctuation stripped, length
// capped.
func sanitizeLabel(raw string) string {
	label := strings.TrimSpace(raw)
	if i := strings.IndexByte(label, '\n'); i >= 0 {
		label = label[:i]
	}
	label = strings.TrimRight(label, ".,;:! ")
	label = strings.Trim(label, "\"'`")
	label = strings.TrimRight(label, ".,;:! ")
	label = strings.TrimSpace(label)
	if len(label) > 60 {
		label = strings.TrimSpace(label[:60])
	}
	return label
}

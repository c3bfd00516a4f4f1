package factcheck

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/metrics"
	"github.com/factcheck-pro/backend/internal/search/web"
	"github.com/factcheck-pro/backend/pkg/jsonextract"
	"github.com/factcheck-pro/backend/pkg/logger"
	"github.com/factcheck-pro/backend/pkg/utils"
)

// ClaimVerifier judges a free-text claim.
type ClaimVerifier interface {
	VerifyClaim(ctx context.Context, text string) (Raw, error)
}

// PageAnalyzer fetches and judges the content behind a URL.
type PageAnalyzer interface {
	AnalyzePage(ctx context.Context, url string) (Raw, error)
}

// ImageProcessor judges the image stored at path. Failures are reported as
// an error-shaped *RawResult, not as err.
type ImageProcessor interface {
	ProcessImageFile(ctx context.Context, path, mimeType string) (*RawResult, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string, numResults int) ([]web.SearchResult, error)
}

// Recorder keeps a history of standardized results.
type Recorder interface {
	Record(ctx context.Context, requestID int64, result *Result) error
}

type Options struct {
	Verifier ClaimVerifier
	Pages    PageAnalyzer
	Images   ImageProcessor
	Searcher WebSearcher
	History  Recorder
	// TempDir holds decoded images while they are analyzed. Empty means os.TempDir.
	TempDir string
	// DefaultSearchResults applies when a search request does not say how many.
	DefaultSearchResults int
	Now                  func() time.Time
}

// Service dispatches fact-check requests to collaborators. It is created once
// at process start; its request counter and start time live as long as the
// process and are never persisted.
type Service struct {
	verifier ClaimVerifier
	pages    PageAnalyzer
	images   ImageProcessor
	searcher WebSearcher
	history  Recorder

	tempDir        string
	defaultResults int
	now            func() time.Time

	startTime time.Time
	requests  atomic.Int64
}

func NewService(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	defaultResults := opts.DefaultSearchResults
	if defaultResults <= 0 {
		defaultResults = 5
	}
	return &Service{
		verifier:       opts.Verifier,
		pages:          opts.Pages,
		images:         opts.Images,
		searcher:       opts.Searcher,
		history:        opts.History,
		tempDir:        opts.TempDir,
		defaultResults: defaultResults,
		now:            now,
		startTime:      now(),
	}
}

// Request is the body of POST /api/fact-check.
type Request struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query      *string `json:"query"`
	NumResults int     `json:"num_results"`
}

// Check validates req and dispatches it. A non-nil error is always a
// *ClientInputError; collaborator failures come back as an error envelope.
func (s *Service) Check(ctx context.Context, req Request) (Envelope, error) {
	if req.Type == "" || req.Data == nil {
		return Envelope{}, clientError("Missing required fields: 'type' and 'data'")
	}

	switch SourceType(req.Type) {
	case SourceText:
		text, err := requiredString(req.Data, "text")
		if err != nil {
			return Envelope{}, err
		}
		return s.ProcessText(ctx, text), nil

	case SourceURL:
		url, err := requiredString(req.Data, "url")
		if err != nil {
			return Envelope{}, err
		}
		return s.ProcessURL(ctx, url), nil

	case SourceImage:
		image, err := requiredString(req.Data, "image")
		if err != nil {
			return Envelope{}, err
		}
		filename, err := optionalString(req.Data, "filename")
		if err != nil {
			return Envelope{}, err
		}
		mimeType, err := optionalString(req.Data, "type")
		if err != nil {
			return Envelope{}, err
		}
		return s.ProcessImage(ctx, image, filename, mimeType), nil

	case SourcePage:
		url, err := requiredString(req.Data, "url")
		if err != nil {
			return Envelope{}, err
		}
		return s.ProcessPage(ctx, url), nil

	default:
		return Envelope{}, clientError(fmt.Sprintf("Unknown fact-check type: %s", req.Type))
	}
}

func requiredString(data map[string]any, field string) (string, error) {
	v, ok := data[field]
	if !ok || v == nil {
		return "", clientError(fmt.Sprintf("Missing '%s' field in data", field))
	}
	s, ok := v.(string)
	if !ok {
		return "", clientError(fmt.Sprintf("Field '%s' in data must be a string", field))
	}
	if strings.TrimSpace(s) == "" {
		return "", clientError(fmt.Sprintf("Missing '%s' field in data", field))
	}
	return s, nil
}

func optionalString(data map[string]any, field string) (string, error) {
	v, ok := data[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", clientError(fmt.Sprintf("Field '%s' in data must be a string", field))
	}
	return s, nil
}

func (s *Service) ProcessText(ctx context.Context, text string) Envelope {
	return s.run(ctx, SourceText, "TEXT_CLAIM", utils.Preview(text, 50), func(ctx context.Context) (Raw, error) {
		if s.verifier == nil {
			return nil, &UpstreamError{Collaborator: "fact_checker", Err: errors.New("fact checker is not available")}
		}
		return s.verifier.VerifyClaim(ctx, text)
	})
}

func (s *Service) ProcessURL(ctx context.Context, url string) Envelope {
	return s.run(ctx, SourceURL, "URL_ANALYSIS", url, func(ctx context.Context) (Raw, error) {
		return s.analyzeURL(ctx, url)
	})
}

func (s *Service) ProcessPage(ctx context.Context, url string) Envelope {
	return s.run(ctx, SourcePage, "PAGE_ANALYSIS", url, func(ctx context.Context) (Raw, error) {
		return s.analyzeURL(ctx, url)
	})
}

// analyzeURL prefers the page analyzer and falls back to the claim verifier.
func (s *Service) analyzeURL(ctx context.Context, url string) (Raw, error) {
	if s.pages != nil {
		return s.pages.AnalyzePage(ctx, url)
	}
	if s.verifier == nil {
		return nil, &UpstreamError{Collaborator: "fact_checker", Err: errors.New("no page analyzer or fact checker is available")}
	}
	return s.verifier.VerifyClaim(ctx, url)
}

func (s *Service) ProcessImage(ctx context.Context, payload, filename, mimeType string) Envelope {
	return s.run(ctx, SourceImage, "IMAGE_ANALYSIS", "Image: "+filename, func(ctx context.Context) (Raw, error) {
		if s.images == nil {
			return nil, &UpstreamError{Collaborator: "image_processor", Err: errors.New("image processor is not available")}
		}

		data, resolvedMime, err := DecodeImage(payload, filename, mimeType)
		if err != nil {
			return nil, err
		}

		path, err := s.writeTemp(data, resolvedMime)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("Failed to remove temporary image", zap.String("path", path), zap.Error(err))
			}
		}()

		raw, err := s.images.ProcessImageFile(ctx, path, resolvedMime)
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
}

func (s *Service) writeTemp(data []byte, mimeType string) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "factcheck-*"+ExtensionForMime(mimeType))
	if err != nil {
		return "", fmt.Errorf("failed to create temporary image file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write temporary image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temporary image file: %w", err)
	}
	return filepath.Clean(path), nil
}

// Search returns the search collaborator's results unmodified.
func (s *Service) Search(ctx context.Context, req SearchRequest) (Envelope, error) {
	if req.Query == nil || strings.TrimSpace(*req.Query) == "" {
		return Envelope{}, clientError("Missing 'query' field")
	}
	query := *req.Query
	num := req.NumResults
	if num <= 0 {
		num = s.defaultResults
	}

	requestID := s.logRequest("WEB_SEARCH", query)
	start := s.now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("search").Observe(s.now().Sub(start).Seconds())
	}()

	if s.searcher == nil {
		return s.fail(requestID, "search", &UpstreamError{Collaborator: "web_search", Err: errors.New("web search is not available")}), nil
	}

	results, err := s.searcher.Search(ctx, query, num)
	if err != nil {
		return s.fail(requestID, "search", &UpstreamError{Collaborator: "web_search", Err: err}), nil
	}
	if results == nil {
		results = []web.SearchResult{}
	}

	metrics.RequestsTotal.WithLabelValues("search", "success").Inc()
	return successEnvelope(s.now(), requestID, results), nil
}

// run counts the request, calls the collaborator, standardizes its reply and
// wraps the outcome. Nothing a collaborator does escapes as a panic or error.
func (s *Service) run(ctx context.Context, source SourceType, label, preview string, call func(ctx context.Context) (Raw, error)) (env Envelope) {
	requestID := s.logRequest(label, preview)
	start := s.now()
	defer func() {
		metrics.RequestDuration.WithLabelValues(string(source)).Observe(s.now().Sub(start).Seconds())
	}()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Collaborator panicked",
				zap.String("type", string(source)),
				zap.Any("panic", r),
			)
			env = s.fail(requestID, string(source), fmt.Errorf("internal error: %v", r))
		}
	}()

	raw, err := call(ctx)
	if err != nil {
		return s.fail(requestID, string(source), err)
	}

	result, err := Standardize(raw, source, s.now())
	if err != nil {
		return s.fail(requestID, string(source), err)
	}

	metrics.RequestsTotal.WithLabelValues(string(source), "success").Inc()
	metrics.ConfidenceScore.WithLabelValues(string(source)).Observe(result.ConfidenceScore)

	if s.history != nil {
		if err := s.history.Record(ctx, requestID, result); err != nil {
			logger.Warn("Failed to record fact-check history", zap.Int64("request_id", requestID), zap.Error(err))
		}
	}

	return successEnvelope(s.now(), requestID, result)
}

func (s *Service) fail(requestID int64, kind string, err error) Envelope {
	metrics.RequestsTotal.WithLabelValues(kind, "error").Inc()

	collaborator := kind
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.Collaborator != "" {
		collaborator = upstream.Collaborator
	}
	metrics.UpstreamErrors.WithLabelValues(collaborator).Inc()

	logger.Error("Error processing request",
		zap.Int64("request_id", requestID),
		zap.String("type", kind),
		zap.Error(err),
	)

	env := errorEnvelope(s.now(), requestID, err.Error())
	var perr *jsonextract.ParseError
	switch {
	case errors.As(err, &perr):
		env.RawResponse = perr.Raw
	case upstream != nil && upstream.Raw != "":
		env.RawResponse = upstream.Raw
	}
	return env
}

func (s *Service) logRequest(label, preview string) int64 {
	id := s.requests.Add(1)
	logger.Info(fmt.Sprintf("Request #%d: %s - %s", id, label, preview),
		zap.Int64("request_id", id),
		zap.String("type", label),
	)
	return id
}

// ClientErrorEnvelope wraps a rejected request. It does not count as a request.
func (s *Service) ClientErrorEnvelope(message string) Envelope {
	return errorEnvelope(s.now(), s.requests.Load(), message)
}

// DataEnvelope wraps a read-only reply such as history. Like client errors it
// carries the current request id without advancing it.
func (s *Service) DataEnvelope(data any) Envelope {
	return successEnvelope(s.now(), s.requests.Load(), data)
}

// ErrorEnvelope wraps a server-side failure that did not come from a
// dispatched check.
func (s *Service) ErrorEnvelope(message string) Envelope {
	return errorEnvelope(s.now(), s.requests.Load(), message)
}

func (s *Service) RequestsProcessed() int64 {
	return s.requests.Load()
}

type AgentsAvailable struct {
	FactChecker    bool `json:"fact_checker"`
	PageAnalyzer   bool `json:"page_analyzer"`
	ImageProcessor bool `json:"image_processor"`
	WebSearch      bool `json:"web_search"`
}

type Health struct {
	Status            string          `json:"status"`
	UptimeSeconds     float64         `json:"uptime_seconds"`
	RequestsProcessed int64           `json:"requests_processed"`
	AgentsAvailable   AgentsAvailable `json:"agents_available"`
}

type Stats struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	RequestsProcessed int64   `json:"requests_processed"`
	StartTime         string  `json:"start_time"`
	CurrentTime       string  `json:"current_time"`
}

func (s *Service) Health() Health {
	return Health{
		Status:            "healthy",
		UptimeSeconds:     s.now().Sub(s.startTime).Seconds(),
		RequestsProcessed: s.requests.Load(),
		AgentsAvailable: AgentsAvailable{
			FactChecker:    s.verifier != nil,
			PageAnalyzer:   s.pages != nil,
			ImageProcessor: s.images != nil,
			WebSearch:      s.searcher != nil,
		},
	}
}

func (s *Service) Stats() Stats {
	now := s.now()
	return Stats{
		UptimeSeconds:     now.Sub(s.startTime).Seconds(),
		RequestsProcessed: s.requests.Load(),
		StartTime:         s.startTime.Format(time.RFC3339Nano),
		CurrentTime:       now.Format(time.RFC3339Nano),
	}
}

// DecodeImage accepts raw base64 or a data URL and returns the bytes with the
// resolved MIME type: explicit type, data-URL header, filename extension, then image/jpeg.
func DecodeImage(payload, filename, mimeType string) ([]byte, string, error) {
	data := payload
	if strings.HasPrefix(payload, "data:") {
		header, rest, found := strings.Cut(payload, ",")
		if !found {
			return nil, "", errors.New("malformed data URL: missing ',' separator")
		}
		data = rest
		if mimeType == "" {
			mimeType = mimeFromDataURLHeader(header)
		}
	}
	if mimeType == "" {
		mimeType = MimeForFilename(filename)
	}

	decoded, err := decodeBase64(data)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image data: %w", err)
	}
	if len(decoded) == 0 {
		return nil, "", errors.New("image payload is empty")
	}
	return decoded, mimeType, nil
}

// mimeFromDataURLHeader reads "data:image/png;base64" as image/png.
func mimeFromDataURLHeader(header string) string {
	_, after, found := strings.Cut(header, ":")
	if !found {
		return ""
	}
	mime, _, _ := strings.Cut(after, ";")
	return strings.TrimSpace(mime)
}

func decodeBase64(data string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, data)
	decoded, err := base64.StdEncoding.DecodeString(cleaned)
	if err == nil {
		return decoded, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

var extensionMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// MimeForFilename maps a file extension to an image MIME type, defaulting to image/jpeg.
func MimeForFilename(name string) string {
	if mime, ok := extensionMimes[strings.ToLower(filepath.Ext(name))]; ok {
		return mime
	}
	return "image/jpeg"
}

func ExtensionForMime(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

package handler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/RoGogDBD/metrics-tracker/internal/config"
	models "github.com/RoGogDBD/metrics-tracker/internal/model"
	"github.com/RoGogDBD/metrics-tracker/internal/repository"
	"github.com/RoGogDBD/metrics-tracker/internal/tracker"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Pinger проверяет доступность внешнего хранилища для /ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler обслуживает HTTP API трекера.
type Handler struct {
	storage repository.Storage
	key     string
	pingers []Pinger
	logger  *zap.Logger
}

// NewHandler создаёт обработчик поверх хранилища.
//
// logger может быть nil.
func NewHandler(storage repository.Storage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{storage: storage, logger: logger}
}

// SetKey задаёт ключ HMAC-подписи.
func (h *Handler) SetKey(key string) {
	h.key = key
}

// AddPinger добавляет хранилище, проверяемое на /ping.
func (h *Handler) AddPinger(p Pinger) {
	if p != nil {
		h.pingers = append(h.pingers, p)
	}
}

func (h *Handler) verifyHash(body []byte, receivedHash string) bool {
	return config.VerifyHash(body, h.key, receivedHash)
}

func (h *Handler) writeJSONWithHash(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")

	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if h.key != "" {
		w.Header().Set(config.HashHeader, config.ComputeHash(body, h.key))
	}

	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

var (
	ErrUnknownMetricType = errors.New("unknown metric type")
	ErrInvalidValue      = errors.New("invalid value for metric type")
)

// MetricUpdate описывает разобранное обновление метрики.
//
// Type — тип метрики.
// Name — имя метрики.
// FloatVal — указатель на значение для gauge.
// IntVal — указатель на значение для counter.
type MetricUpdate struct {
	Type     string
	Name     string
	FloatVal *float64
	IntVal   *int64
}

// ValidateMetricInput разбирает тип, имя и строковое значение метрики.
//
// Возвращает ErrUnknownMetricType для неизвестного типа и ErrInvalidValue,
// если значение не разбирается.
func ValidateMetricInput(metricType, metricName, metricValue string) (*MetricUpdate, error) {
	switch metricType {
	case models.Gauge:
		v, err := strconv.ParseFloat(metricValue, 64)
		if err != nil {
			return nil, errors.Join(ErrInvalidValue, err)
		}
		return &MetricUpdate{Type: models.Gauge, Name: metricName, FloatVal: &v}, nil
	case models.Counter:
		v, err := strconv.ParseInt(metricValue, 10, 64)
		if err != nil {
			return nil, errors.Join(ErrInvalidValue, err)
		}
		return &MetricUpdate{Type: models.Counter, Name: metricName, IntVal: &v}, nil
	default:
		return nil, ErrUnknownMetricType
	}
}

func (h *Handler) apply(m *MetricUpdate) error {
	switch m.Type {
	case models.Gauge:
		return h.storage.SetMetric(m.Name, *m.FloatVal)
	case models.Counter:
		return h.storage.IncrementCounterBy(m.Name, *m.IntVal)
	}
	return ErrUnknownMetricType
}

// applyMetrics переносит значение из models.Metrics в хранилище.
func (h *Handler) applyMetrics(m models.Metrics) (int, error) {
	update := &MetricUpdate{Type: m.MType, Name: m.ID, FloatVal: m.Value, IntVal: m.Delta}
	switch m.MType {
	case models.Gauge:
		if m.Value == nil {
			return http.StatusBadRequest, errors.New("missing value for gauge")
		}
	case models.Counter:
		if m.Delta == nil {
			return http.StatusBadRequest, errors.New("missing delta for counter")
		}
	default:
		return http.StatusNotImplemented, ErrUnknownMetricType
	}
	if err := h.apply(update); err != nil {
		return statusForError(err), err
	}
	return http.StatusOK, nil
}

// HandleUpdate обрабатывает POST /update/{type}/{name}/{value}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	metricType := chi.URLParam(r, "type")
	metricName := chi.URLParam(r, "name")
	metricValue := chi.URLParam(r, "value")

	metric, err := ValidateMetricInput(metricType, metricName, metricValue)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrUnknownMetricType) {
			status = http.StatusNotImplemented
		}
		http.Error(w, err.Error(), status)
		return
	}
	if err := h.apply(metric); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleGetMetricValue обрабатывает GET /value/{type}/{name}.
func (h *Handler) HandleGetMetricValue(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	metricType := chi.URLParam(r, "type")
	metricName := chi.URLParam(r, "name")

	var (
		text string
		ok   bool
	)
	switch metricType {
	case models.Gauge:
		var v float64
		v, ok = h.storage.Metric(metricName)
		text = strconv.FormatFloat(v, 'f', -1, 64)
	case models.Counter:
		var v int64
		v, ok = h.storage.Counter(metricName)
		text = strconv.FormatInt(v, 10)
	case models.Duration:
		var v time.Duration
		v, ok = h.storage.Duration(metricName)
		text = v.String()
	default:
		http.Error(w, "invalid metric type", http.StatusBadRequest)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_, _ = w.Write([]byte(text))
}

// HandleHistory обрабатывает GET /history/{type}/{name}: история серии, от старых к новым.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	metricType := chi.URLParam(r, "type")
	metricName := chi.URLParam(r, "name")

	var (
		values interface{}
		ok     bool
	)
	switch metricType {
	case models.Counter:
		values, ok = h.storage.CounterHistory(metricName)
	case models.Gauge:
		values, ok = h.storage.MetricHistory(metricName)
	case models.Duration:
		values, ok = h.storage.DurationHistory(metricName)
	case models.Request:
		values, ok = h.storage.RequestHistory(metricName)
	default:
		http.Error(w, "invalid metric type", http.StatusBadRequest)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := h.writeJSONWithHash(w, values); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleSnapshot обрабатывает GET /snapshot. До первого прохода сэмплера отвечает 204.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.storage.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := h.writeJSONWithHash(w, snap); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

var metricsPage = template.Must(template.New("metrics").Parse(
	`<html><body><h1>Metrics</h1><p>{{.Source}}</p><ul>` +
		`{{range .Metrics}}<li>{{.Type}} {{.Name}}: {{.Value}}</li>{{end}}` +
		`</ul></body></html>`))

// HandleMetricsPage отдаёт HTML-список текущих значений.
func (h *Handler) HandleMetricsPage(w http.ResponseWriter, r *http.Request) {
	snap := h.storage.Current()
	data := struct {
		Source  string
		Metrics []repository.MetricInfo
	}{Source: snap.Source, Metrics: repository.ListMetrics(snap)}

	var buf bytes.Buffer
	if err := metricsPage.Execute(&buf, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func decodeRequestBody(r *http.Request, v interface{}) error {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	}
	return json.NewDecoder(reader).Decode(v)
}

// readSigned читает тело и проверяет подпись. При ошибке ответ уже записан.
func (h *Handler) readSigned(w http.ResponseWriter, r *http.Request) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if !h.verifyHash(body, r.Header.Get(config.HashHeader)) {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return false
	}
	return true
}

// HandleUpdateJSON обрабатывает POST /update/ с телом models.Metrics.
func (h *Handler) HandleUpdateJSON(w http.ResponseWriter, r *http.Request) {
	if !h.readSigned(w, r) {
		return
	}

	var m models.Metrics
	if err := decodeRequestBody(r, &m); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if status, err := h.applyMetrics(m); err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	if err := h.writeJSONWithHash(w, m); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleUpdateBatchJSON обрабатывает POST /updates/ с телом []models.Metrics.
//
// Пакет применяется до первой ошибки.
func (h *Handler) HandleUpdateBatchJSON(w http.ResponseWriter, r *http.Request) {
	if !h.readSigned(w, r) {
		return
	}

	var metrics []models.Metrics
	if err := decodeRequestBody(r, &metrics); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	for _, m := range metrics {
		if status, err := h.applyMetrics(m); err != nil {
			http.Error(w, err.Error(), status)
			return
		}
	}

	if err := h.writeJSONWithHash(w, metrics); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGetMetricJSON обрабатывает POST /value/ с телом models.Metrics без значения.
func (h *Handler) HandleGetMetricJSON(w http.ResponseWriter, r *http.Request) {
	var req models.Metrics
	if err := decodeRequestBody(r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	resp := models.Metrics{ID: req.ID, MType: req.MType}
	switch req.MType {
	case models.Gauge:
		val, ok := h.storage.Metric(req.ID)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		resp.Value = &val
	case models.Counter:
		delta, ok := h.storage.Counter(req.ID)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		resp.Delta = &delta
	default:
		http.Error(w, "unknown metric type", http.StatusNotImplemented)
		return
	}
	if err := h.writeJSONWithHash(w, resp); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandlePing проверяет все подключённые хранилища.
func (h *Handler) HandlePing(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			http.Error(w, "storage not reachable: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusForError сопоставляет ошибки трекера с HTTP-статусами.
func statusForError(err error) int {
	switch {
	case errors.Is(err, tracker.ErrEmptyName), errors.Is(err, tracker.ErrInvalidDelta):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

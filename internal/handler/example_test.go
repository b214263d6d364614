package handler_test

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"

	"github.com/RoGogDBD/metrics-tracker/internal/handler"
	"github.com/RoGogDBD/metrics-tracker/internal/tracker"
	"github.com/go-chi/chi/v5"
)

// ExampleHandler_HandleUpdate демонстрирует обновление счётчика через URL.
func ExampleHandler_HandleUpdate() {
	tr := tracker.New(tracker.DefaultConfig(), nil, nil)
	h := handler.NewHandler(tr, nil)

	req := httptest.NewRequest("POST", "/update/counter/requests/3", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("type", "counter")
	rctx.URLParams.Add("name", "requests")
	rctx.URLParams.Add("value", "3")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.HandleUpdate(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	v, _ := tr.Counter("requests")
	fmt.Printf("Status: %s\n", resp.Status)
	fmt.Printf("Value: %d\n", v)
	// Output:
	// Status: 200 OK
	// Value: 3
}

// ExampleHandler_HandleHistory демонстрирует чтение истории датчика после двух проходов сэмплера.
func ExampleHandler_HandleHistory() {
	tr := tracker.New(tracker.DefaultConfig(), nil, nil)
	h := handler.NewHandler(tr, nil)

	_ = tr.SetMetric("cpu_usage", 10)
	_, _ = tr.Sample(context.Background())
	_ = tr.SetMetric("cpu_usage", 75.5)
	_, _ = tr.Sample(context.Background())

	r := chi.NewRouter()
	r.Get("/history/{type}/{name}", h.HandleHistory)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/history/gauge/cpu_usage", nil))

	body, _ := io.ReadAll(w.Result().Body)
	fmt.Println(string(body))
	// Output:
	// [10,75.5]
}

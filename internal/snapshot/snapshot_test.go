package snapshot

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shapestone/shape-core/pkg/ast"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shapestone/shape-https/internal/linereader"
	"github.com/shapestone/shape-https/pkg/http"
)

func parseRequest(t *testing.T, raw string) *http.Request {
	t.Helper()
	req, err := http.NewParser(http.DefaultConfig(), linereader.New(strings.NewReader(raw))).Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return req
}

func TestRequest(t *testing.T) {
	req := parseRequest(t, "GET /api/users HTTP/1.1\r\nHost: localhost\r\nAccept: */*\r\n\r\n")
	got := ToInterface(Request(req))
	want := map[string]any{
		"method":        "GET",
		"target":        "https://localhost/api/users",
		"version":       "HTTP/1.1",
		"contentLength": int64(0),
		"headers": []any{
			map[string]any{"key": "host", "value": "localhost"},
			map[string]any{"key": "accept", "value": "*/*"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Request() mismatch (-want +got):\n%s", diff)
	}
}

func TestExchange_Error(t *testing.T) {
	resp := http.NewResponse()
	resp.Status = 400
	resp.Header.Set("connection", "close")
	x := http.Exchange{
		Response: resp,
		Err:      http.NewError(http.KindBadRequest, "bad field line"),
	}

	obj, ok := Exchange(x).(*ast.ObjectNode)
	if !ok {
		t.Fatalf("Exchange() = %T, want *ast.ObjectNode", Exchange(x))
	}
	props := obj.Properties()
	if _, ok := props["request"]; ok {
		t.Error("request present for an unparsed exchange")
	}
	errObj := ToInterface(props["error"]).(map[string]any)
	if errObj["status"] != int64(400) || errObj["close"] != true || errObj["message"] != "bad field line" {
		t.Errorf("error = %v", errObj)
	}
	if ToInterface(props["persist"]) != false {
		t.Errorf("persist = %v, want false", ToInterface(props["persist"]))
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	f := http.NewFields()
	f.Append("Content-Type", "text/plain")
	f.Append("X-Trace", "a")
	f.Append("x-trace", "b")

	back, err := FieldsFromNode(Fields(f))
	if err != nil {
		t.Fatalf("FieldsFromNode() error = %v", err)
	}
	if !back.Equal(f) {
		t.Errorf("round trip = %s, want %s", back, f)
	}
}

func TestFieldsFromNode_Errors(t *testing.T) {
	bad := []ast.SchemaNode{
		ast.NewLiteralNode("x", zeroPos),
		ast.NewArrayDataNode([]ast.SchemaNode{ast.NewLiteralNode("x", zeroPos)}, zeroPos),
		ast.NewArrayDataNode([]ast.SchemaNode{
			ast.NewObjectNode(map[string]ast.SchemaNode{"value": ast.NewLiteralNode("v", zeroPos)}, zeroPos),
		}, zeroPos),
	}
	for i, node := range bad {
		if _, err := FieldsFromNode(node); err == nil {
			t.Errorf("case %d: FieldsFromNode() expected error", i)
		}
	}
}

func TestField_Zap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	req := parseRequest(t, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")
	resp := http.NewResponse()
	resp.Header.Set("content-length", "0")
	logger.Debug("exchange", Field("exchange", Exchange(http.Exchange{Request: req, Response: resp, Persist: true})))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()
	x, ok := ctx["exchange"].(map[string]any)
	if !ok {
		t.Fatalf("exchange field = %T", ctx["exchange"])
	}
	if x["persist"] != true {
		t.Errorf("persist = %v", x["persist"])
	}
	r, ok := x["request"].(map[string]any)
	if !ok || r["target"] != "https://localhost/" {
		t.Errorf("request = %v", x["request"])
	}
	headers, ok := r["headers"].([]any)
	if !ok || len(headers) != 1 {
		t.Errorf("request headers = %v", r["headers"])
	}
}

// Package snapshot maps processed exchanges onto shape-core AST nodes for
// structured logging.
//
// An exchange becomes an ObjectNode:
//
//	{ "persist": true,
//	  "request":  { "method": "GET", "target": "https://localhost/",
//	                "version": "HTTP/1.1", "contentLength": 0,
//	                "headers": [{"key": "host", "value": "localhost"}, ...],
//	                "trailers": [...] },
//	  "response": { "status": 404, "version": "HTTP/1.1", "headers": [...] },
//	  "error":    { "kind": "not found", "status": 404, "close": true,
//	                "message": "..." } }
//
// Absent parts (no request, no error, no trailer section) are omitted.
package snapshot

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shapestone/shape-core/pkg/ast"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shapestone/shape-https/pkg/http"
)

var zeroPos = ast.Position{}

// Exchange converts a processed exchange to an ObjectNode.
func Exchange(x http.Exchange) ast.SchemaNode {
	props := map[string]ast.SchemaNode{
		"persist": ast.NewLiteralNode(x.Persist, zeroPos),
	}
	if x.Request != nil {
		props["request"] = Request(x.Request)
	}
	if x.Response != nil {
		props["response"] = Response(x.Response)
	}
	if x.Err != nil {
		props["error"] = Error(x.Err)
	}
	return ast.NewObjectNode(props, zeroPos)
}

// Request converts the head of req to an ObjectNode. Content is not included.
func Request(req *http.Request) ast.SchemaNode {
	props := map[string]ast.SchemaNode{
		"method":        ast.NewLiteralNode(string(req.Method()), zeroPos),
		"target":        ast.NewLiteralNode(req.Target().String(), zeroPos),
		"version":       ast.NewLiteralNode(req.Version().String(), zeroPos),
		"contentLength": ast.NewLiteralNode(req.ContentLength(), zeroPos),
		"headers":       Fields(req.Header()),
	}
	if t := req.Trailer(); t != nil {
		props["trailers"] = Fields(t)
	}
	return ast.NewObjectNode(props, zeroPos)
}

// Response converts the head of resp to an ObjectNode.
func Response(resp *http.Response) ast.SchemaNode {
	props := map[string]ast.SchemaNode{
		"status":  ast.NewLiteralNode(int64(resp.Status), zeroPos),
		"version": ast.NewLiteralNode(resp.Version.String(), zeroPos),
		"headers": Fields(&resp.Header),
	}
	if resp.Trailer != nil {
		props["trailers"] = Fields(resp.Trailer)
	}
	return ast.NewObjectNode(props, zeroPos)
}

// Error converts err to an ObjectNode.
func Error(err *http.Error) ast.SchemaNode {
	props := map[string]ast.SchemaNode{
		"kind":   ast.NewLiteralNode(err.Kind.String(), zeroPos),
		"status": ast.NewLiteralNode(int64(err.Kind.Status()), zeroPos),
		"close":  ast.NewLiteralNode(err.CloseConnection, zeroPos),
	}
	if err.Message != "" {
		props["message"] = ast.NewLiteralNode(err.Message, zeroPos)
	}
	if err.Err != nil {
		props["cause"] = ast.NewLiteralNode(err.Err.Error(), zeroPos)
	}
	return ast.NewObjectNode(props, zeroPos)
}

// Fields converts a field section to an ArrayDataNode of key/value objects
// in section order.
func Fields(f *http.Fields) ast.SchemaNode {
	elements := make([]ast.SchemaNode, 0, f.Len())
	for name, value := range f.All() {
		elements = append(elements, ast.NewObjectNode(map[string]ast.SchemaNode{
			"key":   ast.NewLiteralNode(name, zeroPos),
			"value": ast.NewLiteralNode(value, zeroPos),
		}, zeroPos))
	}
	return ast.NewArrayDataNode(elements, zeroPos)
}

// FieldsFromNode converts an ArrayDataNode produced by Fields back to a field
// section.
func FieldsFromNode(node ast.SchemaNode) (*http.Fields, error) {
	arr, ok := node.(*ast.ArrayDataNode)
	if !ok {
		return nil, fmt.Errorf("expected ArrayDataNode for fields, got %T", node)
	}
	f := http.NewFields()
	for _, elem := range arr.Elements() {
		obj, ok := elem.(*ast.ObjectNode)
		if !ok {
			return nil, fmt.Errorf("expected ObjectNode for field, got %T", elem)
		}
		props := obj.Properties()
		key, _ := literalString(props["key"])
		value, _ := literalString(props["value"])
		if key == "" {
			return nil, fmt.Errorf("field without key")
		}
		f.Append(key, value)
	}
	return f, nil
}

func literalString(node ast.SchemaNode) (string, bool) {
	lit, ok := node.(*ast.LiteralNode)
	if !ok {
		return "", false
	}
	s, ok := lit.Value().(string)
	return s, ok
}

// ToInterface converts an AST node to native Go values.
func ToInterface(node ast.SchemaNode) any {
	switch n := node.(type) {
	case *ast.LiteralNode:
		return n.Value()
	case *ast.ArrayDataNode:
		elements := n.Elements()
		arr := make([]any, len(elements))
		for i, elem := range elements {
			arr[i] = ToInterface(elem)
		}
		return arr
	case *ast.ObjectNode:
		props := n.Properties()
		m := make(map[string]any, len(props))
		for k, v := range props {
			m[k] = ToInterface(v)
		}
		return m
	default:
		return nil
	}
}

// Field returns a zap field logging node as a nested object.
func Field(key string, node ast.SchemaNode) zap.Field {
	switch n := node.(type) {
	case *ast.ObjectNode:
		return zap.Object(key, object{n})
	case *ast.ArrayDataNode:
		return zap.Array(key, array{n})
	default:
		return zap.Any(key, ToInterface(node))
	}
}

type object struct{ n *ast.ObjectNode }

func (o object) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	props := o.n.Properties()
	for _, k := range slices.Sorted(maps.Keys(props)) {
		switch v := props[k].(type) {
		case *ast.ObjectNode:
			if err := enc.AddObject(k, object{v}); err != nil {
				return err
			}
		case *ast.ArrayDataNode:
			if err := enc.AddArray(k, array{v}); err != nil {
				return err
			}
		default:
			if err := enc.AddReflected(k, ToInterface(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

type array struct{ n *ast.ArrayDataNode }

func (a array) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, elem := range a.n.Elements() {
		switch v := elem.(type) {
		case *ast.ObjectNode:
			if err := enc.AppendObject(object{v}); err != nil {
				return err
			}
		case *ast.ArrayDataNode:
			if err := enc.AppendArray(array{v}); err != nil {
				return err
			}
		default:
			if err := enc.AppendReflected(ToInterface(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

package policy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Renderer turns a proposed call into the single text subject that rule
// patterns are searched in.
type Renderer interface {
	Render(tool string, args map[string]any) string
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(tool string, args map[string]any) string

// Render calls f.
func (f RendererFunc) Render(tool string, args map[string]any) string { return f(tool, args) }

// CanonicalRenderer is the default Renderer.
//
// Output is "<tool>" followed by " key=value" for each argument with keys in
// byte order. Nested maps render as {k=v k2=v2} with sorted keys, slices and
// arrays as [a b], strings verbatim, nil as null. Structs go through their
// JSON encoding first so that field tags name the keys.
type CanonicalRenderer struct{}

// Render implements Renderer.
func (CanonicalRenderer) Render(tool string, args map[string]any) string {
	var b strings.Builder
	b.WriteString(tool)
	for _, k := range sortedKeys(args) {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		writeValue(&b, reflect.ValueOf(args[k]))
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeValue(b *strings.Builder, v reflect.Value) {
	if !v.IsValid() {
		b.WriteString("null")
		return
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		if v.Kind() == reflect.Pointer && v.Elem().Kind() == reflect.Struct {
			writeStruct(b, v.Interface())
			return
		}
		writeValue(b, v.Elem())
	case reflect.String:
		b.WriteString(v.String())
	case reflect.Map:
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		keys := v.MapKeys()
		rendered := make([]string, len(keys))
		for i, k := range keys {
			rendered[i] = fmt.Sprint(k.Interface())
		}
		order := make([]int, len(keys))
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(i, j int) bool { return rendered[order[i]] < rendered[order[j]] })
		b.WriteByte('{')
		for n, i := range order {
			if n > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(rendered[i])
			b.WriteByte('=')
			writeValue(b, v.MapIndex(keys[i]))
		}
		b.WriteByte('}')
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			b.Write(v.Bytes())
			return
		}
		b.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeValue(b, v.Index(i))
		}
		b.WriteByte(']')
	case reflect.Struct:
		writeStruct(b, v.Interface())
	default:
		fmt.Fprint(b, v.Interface())
	}
}

// writeStruct renders a struct through its JSON form so that the keys seen
// by rules match what the caller sent on the wire.
func writeStruct(b *strings.Builder, s any) {
	if str, ok := s.(fmt.Stringer); ok {
		b.WriteString(str.String())
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		fmt.Fprint(b, s)
		return
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		b.Write(data)
		return
	}
	writeValue(b, reflect.ValueOf(generic))
}

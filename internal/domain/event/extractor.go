package event

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// DefaultObjectExpression selects (area, key) pairs from an S3-style event document.
const DefaultObjectExpression = "Records[].{area: s3.bucket.name, key: s3.object.key}"

// ObjectRef addresses one object in the blob store.
type ObjectRef struct {
	Area string
	Key  string
}

// ExtractorOptions configures an Extractor.
type ExtractorOptions struct {
	// Expression must evaluate to a list of objects with "area" and "key" fields.
	Expression string
	// DecodeKeys URL-decodes keys; storage event notifications encode them.
	DecodeKeys bool
}

// Extractor pulls object references out of record bodies.
type Extractor struct {
	expr       string
	query      jmespath.JMESPath
	decodeKeys bool
}

// NewExtractor validates the expression and builds an Extractor.
func NewExtractor(opts ExtractorOptions) (*Extractor, error) {
	expr := strings.TrimSpace(opts.Expression)
	if expr == "" {
		expr = DefaultObjectExpression
	}
	query, err := jmespath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile object expression: %w", err)
	}
	return &Extractor{expr: expr, query: query, decodeKeys: opts.DecodeKeys}, nil
}

// Expression returns the compiled object expression.
func (e *Extractor) Expression() string {
	return e.expr
}

// Objects returns the object references of one record body in document order.
// A body without events (for example a storage test event) yields no refs.
func (e *Extractor) Objects(body string) ([]ObjectRef, error) {
	doc, err := decodeBody(body)
	if err != nil {
		return nil, err
	}
	res, err := e.query.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate object expression: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	items, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("object expression returned %T, want list", res)
	}

	refs := make([]ObjectRef, 0, len(items))
	for i, item := range items {
		ref, err := e.toRef(item)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (e *Extractor) toRef(item any) (ObjectRef, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return ObjectRef{}, fmt.Errorf("unexpected event shape %T", item)
	}
	area, _ := m["area"].(string)
	key, _ := m["key"].(string)
	if area == "" || key == "" {
		return ObjectRef{}, errors.New("event is missing area or key")
	}
	if e.decodeKeys {
		decoded, err := url.QueryUnescape(key)
		if err != nil {
			return ObjectRef{}, fmt.Errorf("decode key %q: %w", key, err)
		}
		key = decoded
	}
	return ObjectRef{Area: area, Key: key}, nil
}

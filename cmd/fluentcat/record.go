package main

import (
	"errors"
	"fmt"

	"github.com/valyala/fastjson"

	"github.com/bitdabbler/fluentfwd"
)

var errObjectExpected = errors.New("JSON object expected")

var parserPool fastjson.ParserPool

// parseRecord converts one JSON object into a record map, keeping the key
// order of the input.
func parseRecord(b []byte) (fluentfwd.Map, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, errObjectExpected
	}

	// values reference the parser's memory, so convert before it is reused
	return jsonValue(v).Map(), nil
}

func jsonValue(v *fastjson.Value) fluentfwd.Value {
	switch v.Type() {
	case fastjson.TypeNull:
		return fluentfwd.Null()
	case fastjson.TypeTrue:
		return fluentfwd.Bool(true)
	case fastjson.TypeFalse:
		return fluentfwd.Bool(false)
	case fastjson.TypeNumber:
		if i, err := v.Int64(); err == nil {
			return fluentfwd.Int(i)
		}
		return fluentfwd.Float(v.GetFloat64())
	case fastjson.TypeString:
		return fluentfwd.String(string(v.GetStringBytes()))
	case fastjson.TypeArray:
		vs := v.GetArray()
		seq := make([]fluentfwd.Value, len(vs))
		for i, e := range vs {
			seq[i] = jsonValue(e)
		}
		return fluentfwd.SeqOf(seq...)
	case fastjson.TypeObject:
		o := v.GetObject()
		m := make(fluentfwd.Map, 0, o.Len())
		o.Visit(func(key []byte, e *fastjson.Value) {
			m = append(m, fluentfwd.F(string(key), jsonValue(e)))
		})
		return fluentfwd.MapOf(m...)
	}
	return fluentfwd.Null()
}

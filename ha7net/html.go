// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ha7net

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// field is an INPUT element of an HA7Net result page.
type field struct {
	name     string
	value    string
	hasValue bool
}

// inputs calls fn for every INPUT element of body whose NAME starts with
// prefix, in document order, until fn returns false.
func inputs(body []byte, prefix string, fn func(f field) bool) {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "input" || !hasAttr {
				continue
			}
			var f field
			for more := true; more; {
				var k, v []byte
				k, v, more = z.TagAttr()
				switch string(k) {
				case "name":
					f.name = string(v)
				case "value":
					f.value = string(v)
					f.hasValue = true
				}
			}
			if strings.HasPrefix(f.name, prefix) && !fn(f) {
				return
			}
		}
	}
}

// inputValue returns the VALUE of the INPUT element named name.
func inputValue(body []byte, name string) (string, bool) {
	var value string
	found := false
	inputs(body, name, func(f field) bool {
		if f.name != name {
			return true
		}
		value, found = f.value, f.hasValue
		return false
	})
	return value, found
}

// Package strings provides pooled string building for gluejdbc: a reusable
// byte Builder, a pooled Sprintf, and a URLBuilder that renders connectivity
// URLs with RFC 3986 escaping for credentials, paths and query parameters.
package strings

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Builder accumulates bytes for a string.
type Builder struct {
	buf []byte
}

// NewBuilder creates a builder with the given initial capacity.
func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf: make([]byte, 0, capacity),
	}
}

// WriteString appends s.
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a single byte.
func (b *Builder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns a copy of the accumulated bytes.
func (b *Builder) String() string {
	return string(b.buf)
}

// Len returns the number of accumulated bytes.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset empties the builder, keeping its capacity.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// BuilderSize selects one of the builder pools.
type BuilderSize int

const (
	Small  BuilderSize = iota // < 1KB, URLs and error messages
	Medium                    // 1KB - 16KB, generated SQL
)

var (
	smallBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(1024)
		},
	}

	mediumBuilderPool = &sync.Pool{
		New: func() interface{} {
			return NewBuilder(16 * 1024)
		},
	}
)

func poolFor(size BuilderSize) *sync.Pool {
	if size == Medium {
		return mediumBuilderPool
	}
	return smallBuilderPool
}

// GetBuilder takes an empty builder from the pool of the given size.
func GetBuilder(size BuilderSize) *Builder {
	builder := poolFor(size).Get().(*Builder)
	builder.Reset()
	return builder
}

// PutBuilder returns a builder to its pool.
func PutBuilder(builder *Builder, size BuilderSize) {
	if builder == nil {
		return
	}
	builder.Reset()
	poolFor(size).Put(builder)
}

func sizeFor(n int) BuilderSize {
	if n > 1024 {
		return Medium
	}
	return Small
}

// Sprintf is fmt.Sprintf backed by a pooled builder.
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	size := sizeFor(len(format) + len(args)*16)
	builder := GetBuilder(size)
	defer PutBuilder(builder, size)

	fmt.Fprintf(builder, format, args...)
	return builder.String()
}

// Concat joins parts with no separator.
func Concat(parts ...string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}

	size := sizeFor(total)
	builder := GetBuilder(size)
	defer PutBuilder(builder, size)

	for _, p := range parts {
		builder.WriteString(p)
	}
	return builder.String()
}

// URLBuilder renders scheme://[user[:password]@]host[:port][/path][?params].
// Parameters are written in key order so equal inputs render equal URLs.
type URLBuilder struct {
	builder *Builder
	params  map[string]string
}

// NewURLBuilder starts a URL with the given scheme.
func NewURLBuilder(scheme string) *URLBuilder {
	builder := GetBuilder(Small)
	builder.WriteString(scheme)
	builder.WriteString("://")
	return &URLBuilder{builder: builder}
}

// SetUserinfo writes escaped credentials. An empty user writes nothing; an
// empty password writes the user alone.
func (ub *URLBuilder) SetUserinfo(user, password string) *URLBuilder {
	if user == "" && password == "" {
		return ub
	}
	ub.builder.WriteString(EscapeUserinfo(user))
	if password != "" {
		ub.builder.WriteByte(':')
		ub.builder.WriteString(EscapeUserinfo(password))
	}
	ub.builder.WriteByte('@')
	return ub
}

// SetHost writes host and, when positive, port. IPv6 literals are bracketed.
func (ub *URLBuilder) SetHost(host string, port int) *URLBuilder {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		ub.builder.WriteByte('[')
		ub.builder.WriteString(host)
		ub.builder.WriteByte(']')
	} else {
		ub.builder.WriteString(host)
	}
	if port > 0 {
		ub.builder.WriteByte(':')
		ub.builder.WriteString(strconv.Itoa(port))
	}
	return ub
}

// AddPath appends escaped path segments. Empty segments are skipped.
func (ub *URLBuilder) AddPath(segments ...string) *URLBuilder {
	for _, segment := range segments {
		if segment != "" {
			ub.builder.WriteByte('/')
			ub.builder.WriteString(EscapePathSegment(segment))
		}
	}
	return ub
}

// AddParam records a query parameter; a repeated key keeps the last value.
func (ub *URLBuilder) AddParam(key, value string) *URLBuilder {
	if ub.params == nil {
		ub.params = make(map[string]string)
	}
	ub.params[key] = value
	return ub
}

// AddParams records every entry of params.
func (ub *URLBuilder) AddParams(params map[string]string) *URLBuilder {
	for k, v := range params {
		ub.AddParam(k, v)
	}
	return ub
}

// String renders the URL.
func (ub *URLBuilder) String() string {
	if len(ub.params) == 0 {
		return ub.builder.String()
	}

	keys := make([]string, 0, len(ub.params))
	for k := range ub.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := NewBuilder(ub.builder.Len() + 32*len(keys))
	out.WriteString(ub.builder.String())
	for i, k := range keys {
		if i == 0 {
			out.WriteByte('?')
		} else {
			out.WriteByte('&')
		}
		out.WriteString(EscapeQuery(k))
		out.WriteByte('=')
		out.WriteString(EscapeQuery(ub.params[k]))
	}
	return out.String()
}

// Close returns the builder to the pool. The URLBuilder is unusable afterwards.
func (ub *URLBuilder) Close() {
	if ub.builder != nil {
		PutBuilder(ub.builder, Small)
		ub.builder = nil
	}
}

// EscapeUserinfo percent-encodes everything outside the RFC 3986 unreserved
// set, so '@', ':' and '/' in credentials cannot break the authority.
func EscapeUserinfo(s string) string {
	return escape(s, false)
}

// EscapePathSegment percent-encodes a single path segment, including '/'.
func EscapePathSegment(s string) string {
	return escape(s, false)
}

// EscapeQuery percent-encodes a query key or value, writing spaces as '+'.
func EscapeQuery(s string) string {
	return escape(s, true)
}

func escape(s string, spaceAsPlus bool) string {
	needEscape := false
	for i := 0; i < len(s); i++ {
		if !isUnreserved(s[i]) {
			needEscape = true
			break
		}
	}
	if !needEscape {
		return s
	}

	builder := GetBuilder(Small)
	defer PutBuilder(builder, Small)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isUnreserved(c):
			builder.WriteByte(c)
		case c == ' ' && spaceAsPlus:
			builder.WriteByte('+')
		default:
			builder.WriteByte('%')
			builder.WriteByte("0123456789ABCDEF"[c>>4])
			builder.WriteByte("0123456789ABCDEF"[c&15])
		}
	}
	return builder.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

package jdbcerrors_test

import (
	"errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Example demonstrates basic error creation.
func Example() {
	err := jdbcerrors.New(jdbcerrors.KindURLParse, "missing host").
		WithDetail("url", "jdbc:postgresql:///mydb")

	fmt.Println(err.Error())

	// Output:
	// url_parse: missing host
}

// ExampleWrap shows how a driver error keeps its message under a kind.
func ExampleWrap() {
	err := jdbcerrors.Wrap(io.ErrUnexpectedEOF, jdbcerrors.KindConnectionFailure, "ping failed").
		WithDetail("host", "db.example.com")

	fmt.Println(err)
	fmt.Println(errors.Is(err, io.ErrUnexpectedEOF))

	// Output:
	// connection_failure: ping failed: unexpected EOF
	// true
}

// ExampleIsRetryable shows that only throttling is a retry hint.
func ExampleIsRetryable() {
	throttled := jdbcerrors.New(jdbcerrors.KindThrottling, "rate exceeded")
	notFound := jdbcerrors.New(jdbcerrors.KindConnectionNotFound, "no such connection")

	fmt.Println(jdbcerrors.IsRetryable(throttled))
	fmt.Println(jdbcerrors.IsRetryable(notFound))

	// Output:
	// true
	// false
}

// Example_errorChain shows the outer kind and the nested cause tag.
func Example_errorChain() {
	inner := jdbcerrors.New(jdbcerrors.KindThrottling, "rate exceeded")
	outer := jdbcerrors.Wrap(inner, jdbcerrors.KindCatalog, "resolve sales-db")

	fmt.Println(outer)
	fmt.Println(jdbcerrors.KindOf(outer))
	fmt.Println(errors.Is(outer, jdbcerrors.ErrThrottling))

	// Output:
	// catalog: resolve sales-db: throttling: rate exceeded
	// catalog
	// true
}

package testutil

import (
	"context"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/smithy-go"
)

// FakeGlue serves Glue connections from memory. It satisfies
// catalog.GlueAPI.
//
// Failures are scripted: each entry of Failures is returned by one call, in
// order, before the fake starts answering normally.
type FakeGlue struct {
	mu          sync.Mutex
	connections map[string]types.Connection
	order       []string

	// PageSize splits GetConnections into pages; 0 returns one page
	PageSize int
	// Failures are returned by the next calls, one per call
	Failures []error

	GetCalls  int
	ListCalls int
}

// NewFakeGlue returns an empty catalog.
func NewFakeGlue() *FakeGlue {
	return &FakeGlue{connections: make(map[string]types.Connection)}
}

// AddJDBC registers a JDBC connection with the given URL and credentials.
func (f *FakeGlue) AddJDBC(name, jdbcURL, username, password string) *FakeGlue {
	props := map[string]string{"JDBC_CONNECTION_URL": jdbcURL}
	if username != "" {
		props["USERNAME"] = username
	}
	if password != "" {
		props["PASSWORD"] = password
	}
	return f.Add(types.Connection{
		Name:                 aws.String(name),
		ConnectionType:       types.ConnectionTypeJdbc,
		ConnectionProperties: props,
	})
}

// Add registers a raw connection.
func (f *FakeGlue) Add(conn types.Connection) *FakeGlue {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(conn.Name)
	if _, ok := f.connections[name]; !ok {
		f.order = append(f.order, name)
	}
	f.connections[name] = conn
	return f
}

// Throttle queues n throttling failures.
func (f *FakeGlue) Throttle(n int) *FakeGlue {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.Failures = append(f.Failures, &smithy.GenericAPIError{
			Code:    "ThrottlingException",
			Message: "Rate exceeded",
		})
	}
	return f
}

func (f *FakeGlue) nextFailure() error {
	if len(f.Failures) == 0 {
		return nil
	}
	err := f.Failures[0]
	f.Failures = f.Failures[1:]
	return err
}

// GetConnection implements catalog.GlueAPI.
func (f *FakeGlue) GetConnection(_ context.Context, in *glue.GetConnectionInput, _ ...func(*glue.Options)) (*glue.GetConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	if err := f.nextFailure(); err != nil {
		return nil, err
	}
	conn, ok := f.connections[aws.ToString(in.Name)]
	if !ok {
		return nil, &types.EntityNotFoundException{Message: aws.String("Connection not found")}
	}
	if in.HidePassword {
		conn.ConnectionProperties = withoutPassword(conn.ConnectionProperties)
	}
	return &glue.GetConnectionOutput{Connection: &conn}, nil
}

// GetConnections implements catalog.GlueAPI.
func (f *FakeGlue) GetConnections(_ context.Context, in *glue.GetConnectionsInput, _ ...func(*glue.Options)) (*glue.GetConnectionsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListCalls++
	if err := f.nextFailure(); err != nil {
		return nil, err
	}

	start := 0
	if in.NextToken != nil {
		n, err := strconv.Atoi(*in.NextToken)
		if err != nil {
			return nil, &types.InvalidInputException{Message: aws.String("bad token")}
		}
		start = n
	}
	end := len(f.order)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	out := &glue.GetConnectionsOutput{}
	for _, name := range f.order[start:end] {
		conn := f.connections[name]
		conn.ConnectionProperties = withoutPassword(conn.ConnectionProperties)
		out.ConnectionList = append(out.ConnectionList, conn)
	}
	if end < len(f.order) {
		out.NextToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func withoutPassword(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if k != "PASSWORD" {
			out[k] = v
		}
	}
	return out
}

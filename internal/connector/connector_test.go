package connector

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"qc/internal/dataset"
)

type fakeConn struct {
	schemaErr error
	closed    bool
}

func (f *fakeConn) Query(ctx context.Context, query string) (*dataset.Dataset, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeConn) Schema(ctx context.Context) (map[string]any, error) {
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return map[string]any{"tables": []string{}}, nil
}

func (f *fakeConn) Close() { f.closed = true }

func TestRegisterAndNew(t *testing.T) {
	conn := &fakeConn{}
	Register("fake-a", func(ctx context.Context, cfg Config) (Connector, error) {
		return conn, nil
	})

	got, err := New(context.Background(), Config{Kind: "fake-a"})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if got != conn {
		t.Fatal("New() did not return the registered connector")
	}
	if !slices.Contains(Kinds(), "fake-a") {
		t.Fatalf("Kinds()=%v, want fake-a included", Kinds())
	}
}

func TestNew_Rejections(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || !strings.Contains(err.Error(), "missing kind") {
		t.Fatalf("New(empty) err=%v, want missing kind", err)
	}
	if _, err := New(context.Background(), Config{Kind: "no-such-backend"}); err == nil || !strings.Contains(err.Error(), "unsupported kind") {
		t.Fatalf("New(unknown) err=%v, want unsupported kind", err)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Connector, error) { return &fakeConn{}, nil }
	Register("fake-dup", f)

	defer func() {
		if recover() == nil {
			t.Fatal("Register() twice did not panic")
		}
	}()
	Register("fake-dup", f)
}

func TestTest(t *testing.T) {
	healthy := &fakeConn{}
	Register("fake-ok", func(ctx context.Context, cfg Config) (Connector, error) {
		return healthy, nil
	})
	broken := &fakeConn{schemaErr: fmt.Errorf("connection refused")}
	Register("fake-broken", func(ctx context.Context, cfg Config) (Connector, error) {
		return broken, nil
	})

	res := Test(context.Background(), Config{Kind: "fake-ok"})
	if !res.Success || res.Message != "Connection successful" {
		t.Fatalf("Test(ok)=%+v, want success", res)
	}
	if !healthy.closed {
		t.Fatal("Test() did not close the connector")
	}

	res = Test(context.Background(), Config{Kind: "fake-broken"})
	if res.Success || !strings.Contains(res.Message, "connection refused") {
		t.Fatalf("Test(broken)=%+v, want failure with cause", res)
	}
	if !broken.closed {
		t.Fatal("Test() did not close the failing connector")
	}

	res = Test(context.Background(), Config{Kind: "no-such-backend"})
	if res.Success {
		t.Fatalf("Test(unknown)=%+v, want failure", res)
	}
}

package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-storegate/core"
)

func TestGetTenantSessionQuery_QueryDelegates(t *testing.T) {
	expected := core.TenantSession{
		TenantID:    "abc123",
		AccessToken: "tok_abc123",
		State:       core.SessionStateLoaded,
	}
	called := false
	reader := stubSessionReader{
		getFn: func(_ context.Context, tenantID core.TenantID) (core.TenantSession, error) {
			called = true
			if tenantID != "abc123" {
				t.Fatalf("unexpected tenant id: %q", tenantID)
			}
			return expected, nil
		},
	}

	qry := NewGetTenantSessionQuery(reader)
	result, err := qry.Query(context.Background(), GetTenantSessionMessage{TenantID: "abc123"})
	if err != nil {
		t.Fatalf("query tenant session: %v", err)
	}
	if !called {
		t.Fatalf("expected session reader invocation")
	}
	if result.AccessToken != expected.AccessToken {
		t.Fatalf("unexpected session result: %#v", result)
	}
}

func TestListTenantUsersQuery_QueryDelegates(t *testing.T) {
	expected := []core.TenantUser{
		{TenantID: "abc123", PlatformUserID: 7, Email: "owner@example.com", IsOwner: true},
		{TenantID: "abc123", PlatformUserID: 42, Email: "staff@example.com"},
	}
	called := false
	reader := stubUserReader{
		listFn: func(_ context.Context, tenantID core.TenantID) ([]core.TenantUser, error) {
			called = true
			if tenantID != "abc123" {
				t.Fatalf("unexpected tenant id: %q", tenantID)
			}
			return expected, nil
		},
	}

	qry := NewListTenantUsersQuery(reader)
	result, err := qry.Query(context.Background(), ListTenantUsersMessage{TenantID: "abc123"})
	if err != nil {
		t.Fatalf("query tenant users: %v", err)
	}
	if !called {
		t.Fatalf("expected user reader invocation")
	}
	if len(result) != 2 || result[0].PlatformUserID != 7 {
		t.Fatalf("unexpected user list result: %#v", result)
	}
}

func TestQueries_NilReaderReturnsDependencyError(t *testing.T) {
	var sessionQry *GetTenantSessionQuery
	if _, err := sessionQry.Query(context.Background(), GetTenantSessionMessage{TenantID: "abc123"}); err == nil {
		t.Fatalf("expected dependency error for nil session query")
	}

	var userQry *ListTenantUsersQuery
	if _, err := userQry.Query(context.Background(), ListTenantUsersMessage{TenantID: "abc123"}); err == nil {
		t.Fatalf("expected dependency error for nil user query")
	}
}

func TestQueryMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "get session valid", msg: GetTenantSessionMessage{TenantID: "abc123"}, wantErr: false},
		{name: "get session missing tenant", msg: GetTenantSessionMessage{}, wantErr: true},
		{name: "get session malformed tenant", msg: GetTenantSessionMessage{TenantID: "abc-123"}, wantErr: true},
		{name: "list users valid", msg: ListTenantUsersMessage{TenantID: "abc123"}, wantErr: false},
		{name: "list users malformed tenant", msg: ListTenantUsersMessage{TenantID: "' OR 1=1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type stubSessionReader struct {
	getFn func(ctx context.Context, tenantID core.TenantID) (core.TenantSession, error)
}

func (s stubSessionReader) GetTenantSession(ctx context.Context, tenantID core.TenantID) (core.TenantSession, error) {
	if s.getFn == nil {
		return core.TenantSession{}, fmt.Errorf("get tenant session not configured")
	}
	return s.getFn(ctx, tenantID)
}

type stubUserReader struct {
	listFn func(ctx context.Context, tenantID core.TenantID) ([]core.TenantUser, error)
}

func (s stubUserReader) ListTenantUsers(ctx context.Context, tenantID core.TenantID) ([]core.TenantUser, error) {
	if s.listFn == nil {
		return nil, fmt.Errorf("list tenant users not configured")
	}
	return s.listFn(ctx, tenantID)
}

var (
	_ SessionReader = stubSessionReader{}
	_ UserReader    = stubUserReader{}
)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	if m == nil {
		t.Fatal("NewMetricsWithRegistry returned nil")
	}
	if m.TCPConnectionsActive == nil {
		t.Error("TCPConnectionsActive metric is nil")
	}
	if m.BytesTotal == nil {
		t.Error("BytesTotal metric is nil")
	}
}

func TestRecordTCPConnect(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordTCPConnect()
	m.RecordTCPConnect()

	if got := testutil.ToFloat64(m.TCPConnectionsActive); got != 2 {
		t.Errorf("TCPConnectionsActive = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TCPConnectionsTotal); got != 2 {
		t.Errorf("TCPConnectionsTotal = %v, want 2", got)
	}

	m.RecordTCPDisconnect()
	if got := testutil.ToFloat64(m.TCPConnectionsActive); got != 1 {
		t.Errorf("TCPConnectionsActive after disconnect = %v, want 1", got)
	}
}

func TestRecordBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordBytes("sent", 100)
	m.RecordBytes("sent", 50)
	m.RecordBytes("received", 10)

	if got := testutil.ToFloat64(m.BytesTotal.WithLabelValues("sent")); got != 150 {
		t.Errorf("BytesTotal{sent} = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.BytesTotal.WithLabelValues("received")); got != 10 {
		t.Errorf("BytesTotal{received} = %v, want 10", got)
	}
}

func TestRecordUDPAssociations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordUDPAssociationOpened()
	m.RecordUDPAssociationOpened()
	m.RecordUDPAssociationClosed()

	if got := testutil.ToFloat64(m.UDPAssociationsActive); got != 1 {
		t.Errorf("UDPAssociationsActive = %v, want 1", got)
	}
}

func TestRecordBanAndHeaderFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	m.RecordHeaderFailure()
	m.RecordHeaderFailure()
	m.RecordBan()

	if got := testutil.ToFloat64(m.HeaderFailures); got != 2 {
		t.Errorf("HeaderFailures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BannedIPsTotal); got != 1 {
		t.Errorf("BannedIPsTotal = %v, want 1", got)
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default() returned different instances")
	}
}

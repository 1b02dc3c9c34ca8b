package runstore

import (
	"testing"
	"time"
)

func TestStoredReport_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"expired", time.Now().Add(-1 * time.Minute), true},
		{"valid", time.Now().Add(1 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &StoredReport{Expires: tt.expires}
			if got := r.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStoredReport_TTL(t *testing.T) {
	expired := &StoredReport{Expires: time.Now().Add(-time.Second)}
	if ttl := expired.TTL(); ttl != 0 {
		t.Errorf("TTL() of expired report = %v, want 0", ttl)
	}

	valid := &StoredReport{Expires: time.Now().Add(10 * time.Minute)}
	if ttl := valid.TTL(); ttl <= 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("TTL() = %v, want about 10m", ttl)
	}
}

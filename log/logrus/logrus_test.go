package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/unkn0wn-root/swcache"
)

func TestLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base, "worker")

	l.Info("activated", swcache.Fields{"deleted": 2})

	e := hook.LastEntry()
	if e == nil || e.Message != "activated" || e.Level != logrus.InfoLevel {
		t.Fatalf("entry = %+v", e)
	}
	if e.Data["component"] != "worker" || e.Data["deleted"] != 2 {
		t.Fatalf("data = %v", e.Data)
	}
}

package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azaurus1/fanet/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"DEBUG", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"ERROR", logrus.ErrorLevel},
		{"", logrus.WarnLevel},
		{"bogus", logrus.WarnLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestInitWithoutDirOnlySetsLevel(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	require.NoError(t, Init(config.LogConfig{Level: "DEBUG"}))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestComponentFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := Component(logrus.NewEntry(logger), "radio", logrus.Fields{"addr": 3})
	entry.Warn("dropped")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "radio", hook.LastEntry().Data["component"])
	assert.Equal(t, 3, hook.LastEntry().Data["addr"])
}

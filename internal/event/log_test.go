package event

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestConfigure(t *testing.T) {
	defer func() { _ = Configure("info", "text") }()

	t.Run("json", func(t *testing.T) {
		assert.NoError(t, Configure("debug", "json"))
		assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
		assert.IsType(t, &logrus.JSONFormatter{}, Log.Formatter)
	})
	t.Run("BadLevel", func(t *testing.T) {
		assert.Error(t, Configure("loud", "text"))
	})
	t.Run("BadFormat", func(t *testing.T) {
		assert.Error(t, Configure("info", "xml"))
	})
}

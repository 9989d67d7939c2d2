package payments

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAttrs(t *testing.T) {
	t.Run("set then get", func(t *testing.T) {
		p := &Payment{}
		attrs := p.Attrs()
		require.NoError(t, attrs.Set("pidx", "abc"))
		require.NoError(t, attrs.Set("attempt", 2))

		v, err := attrs.GetString("pidx")
		require.NoError(t, err)
		require.Equal(t, "abc", v)

		n, err := attrs.Get("attempt")
		require.NoError(t, err)
		require.Equal(t, float64(2), n)
		require.JSONEq(t, `{"pidx":"abc","attempt":2}`, p.ExtraData)
	})

	t.Run("missing key", func(t *testing.T) {
		p := &Payment{ExtraData: `{"a":1}`}
		_, err := p.Attrs().Get("b")
		require.True(t, errors.Is(err, ErrAttrNotFound))
	})

	t.Run("wrong type", func(t *testing.T) {
		p := &Payment{ExtraData: `{"a":1}`}
		_, err := p.Attrs().GetString("a")
		require.Error(t, err)
	})

	t.Run("invalid json is reported on read and replaced on write", func(t *testing.T) {
		p := &Payment{ExtraData: `{not json`}
		_, err := p.Attrs().Get("a")
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrAttrNotFound))

		require.NoError(t, p.Attrs().Set("a", "b"))
		require.JSONEq(t, `{"a":"b"}`, p.ExtraData)
	})

	t.Run("unencodable value leaves extra data untouched", func(t *testing.T) {
		p := &Payment{ExtraData: `{"a":1}`}
		err := p.Attrs().Set("b", make(chan int))
		require.Error(t, err)
		require.JSONEq(t, `{"a":1}`, p.ExtraData)
	})
}

func TestBasicProvider_LoggerDefaultsToNop(t *testing.T) {
	var b BasicProvider
	require.NotNil(t, b.logger())

	logger := zap.NewNop().Sugar()
	b.Logger = logger
	require.Same(t, logger, b.logger())
}

package rabbitmq

import (
	"errors"
	"fmt"
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

func TestIsConnClosedErr(t *testing.T) {
	assert.False(t, isConnClosedErr(nil))
	assert.True(t, isConnClosedErr(amqp.ErrClosed))
	assert.True(t, isConnClosedErr(fmt.Errorf("publish: %w", amqp.ErrClosed)))
	assert.True(t, isConnClosedErr(errors.New("Exception (504) Reason: \"channel/connection is not open\"")))
	assert.False(t, isConnClosedErr(errors.New("exchange not found")))
}

func TestNewPublisherRejectsBadURL(t *testing.T) {
	_, err := NewPublisher("http://not-amqp", "sosdesk", "reports")
	assert.Error(t, err)
}

func TestClosedPublisherIsNotConnected(t *testing.T) {
	p := &Publisher{}
	assert.False(t, p.IsConnected())
	assert.NoError(t, p.Close())
}

package mqtt

import (
	"errors"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ErrTimeout indicates the broker did not respond in time.
var ErrTimeout = errors.New("mqtt timeout")

func wait(token paho.Token, timeout time.Duration) error {
	if timeout <= 0 {
		token.Wait()
	} else if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

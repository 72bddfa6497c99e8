package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	resp := Error(ErrCodeRateLimited, "slow down")
	assert.Equal(t, ErrorResponse{Code: 4290, Message: "rate limit exceeded", Detail: "slow down"}, resp)
	assert.Equal(t, "unknown error", Msg(1))
}

package feedsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
)

func testByJwt(t *testing.T, userId Id, userName string) string {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id":   userId.String(),
		"user_name": userName,
	})
	byJwtStr, err := token.SignedString([]byte("test"))
	assert.Equal(t, err, nil)
	return byJwtStr
}

func TestParseByJwtUnverified(t *testing.T) {
	userId := NewId()
	byJwtStr := testByJwt(t, userId, "alice")

	byJwt, err := ParseByJwtUnverified(byJwtStr)
	assert.Equal(t, err, nil)
	assert.Equal(t, userId, byJwt.UserId)
	assert.Equal(t, "alice", byJwt.UserName)

	_, err = ParseByJwtUnverified("not-a-jwt")
	assert.NotEqual(t, err, nil)
}

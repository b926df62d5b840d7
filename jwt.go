package feedsync

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// claims of the session bearer token. the token is issued and verified by the
// backend; the client only needs the claims to know who "self" is, so the
// signature is not checked here.
type ByJwt struct {
	UserId   Id
	UserName string
}

func ParseByJwtUnverified(byJwtStr string) (*ByJwt, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(byJwtStr, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	byJwt := &ByJwt{}

	if userIdStr, ok := claims["user_id"].(string); ok {
		if userId, err := ParseId(userIdStr); err == nil {
			byJwt.UserId = userId
		}
	}
	if userName, ok := claims["user_name"].(string); ok {
		byJwt.UserName = userName
	}

	return byJwt, nil
}

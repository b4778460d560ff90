package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/errors"
)

// userContextKey is the context key holding the authenticated user.
type userContextKey int

const userMetadataKey userContextKey = 0

// authenticator is a middleware that authenticates the user from the JWT
// token. It decodes the user identifier (its email) from the token, gets the
// user from the database, adds it to the request context and passes it to the
// next handler.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			errors.ErrUnauthorized.Write(w)
			return
		}
		if token == nil || jwt.Validate(token, jwt.WithRequiredClaim("userId")) != nil {
			errors.ErrUnauthorized.Withf("userId claim not found in JWT token").Write(w)
			return
		}
		userEmail, ok := claims["userId"].(string)
		if !ok {
			errors.ErrUnauthorized.Withf("invalid userId claim in JWT token").Write(w)
			return
		}
		// get the user from the database
		user, err := a.db.UserByEmail(userEmail)
		if err != nil {
			if err == db.ErrNotFound {
				errors.ErrUnauthorized.Withf("user not found").Write(w)
				return
			}
			errors.ErrGenericInternalServerError.Withf("could not retrieve user from database: %v", err).Write(w)
			return
		}
		// add the user to the context and pass it through
		ctx := context.WithValue(r.Context(), userMetadataKey, *user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext retrieves the user set by the authenticator middleware.
func userFromContext(ctx context.Context) (*db.User, bool) {
	user, ok := ctx.Value(userMetadataKey).(db.User)
	if !ok {
		return nil, false
	}
	return &user, true
}

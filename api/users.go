package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/substore/store-backend/db"
	"github.com/substore/store-backend/errors"
	"github.com/substore/store-backend/internal"
	"go.vocdoni.io/dvote/log"
)

// registerHandler handles the register request. It creates a new user in the
// database. The password is required in the request but discarded before the
// user is stored; credential verification must exist before registration can
// be treated as authentication.
func (a *API) registerHandler(w http.ResponseWriter, r *http.Request) {
	userInfo := &UserInfo{}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	if err := json.Unmarshal(body, userInfo); err != nil {
		errors.ErrMalformedBody.Write(w)
		return
	}
	// check the email is correct format
	if !internal.ValidEmail(userInfo.Email) {
		errors.ErrEmailMalformed.Write(w)
		return
	}
	// check the first name is not empty
	if userInfo.FirstName == "" {
		errors.ErrMalformedBody.Withf("first name is empty").Write(w)
		return
	}
	// check the last name is not empty
	if userInfo.LastName == "" {
		errors.ErrMalformedBody.Withf("last name is empty").Write(w)
		return
	}
	// add the user to the database, the password is discarded
	user := &db.User{
		Email:     userInfo.Email,
		FirstName: userInfo.FirstName,
		LastName:  userInfo.LastName,
		Active:    true,
	}
	if err := a.db.SetUser(user); err != nil {
		if err == db.ErrAlreadyExists {
			errors.ErrDuplicateUser.Write(w)
			return
		}
		log.Warnw("could not create user", "error", err)
		errors.ErrInternalStorageError.Write(w)
		return
	}
	// send the created user back
	httpWriteJSON(w, user)
}

// userInfoHandler returns the information of the authenticated user.
func (a *API) userInfoHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	httpWriteJSON(w, user)
}

package server

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofrs/uuid"
	otLog "github.com/opentracing/opentracing-go/log"

	"github.com/Tarick/servare/internal/authentication"
)

type loginForm struct {
	Email    string
	Password string
}

// Validate login form fields
func (f loginForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Email, validation.Required, is.EmailFormat),
		validation.Field(&f.Password, validation.Required),
	)
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	span, _ := h.setupTracingSpan(r, "serve-login-form")
	defer span.Finish()
	if sessionFromContext(r.Context()) != nil {
		http.Redirect(w, r, "/feeds", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "login.html", loginPage{page: h.newPage(w, r, "Login")})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-login")
	defer span.Finish()

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if err := form.Validate(); err != nil {
		h.setFlash(w, flashError, "Authentication failed")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	// hashing is CPU heavy, it takes a pool slot like feed parsing does
	var userID uuid.UUID
	var authErr error
	if err := h.pool.Do(ctx, func() {
		userID, authErr = authentication.Authenticate(ctx, h.repository, form.Email, form.Password)
	}); err != nil {
		authErr = err
	}
	if authErr != nil {
		if !errors.Is(authErr, authentication.ErrInvalidCredentials) {
			h.logger.Error("Failure authenticating user: ", authErr)
			span.LogFields(otLog.Error(authErr))
		}
		h.setFlash(w, flashError, "Authentication failed")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	token, err := h.sessions.Create(ctx, userID)
	if err != nil {
		h.logger.Error("Failure creating session: ", err)
		span.LogFields(otLog.Error(err))
		h.setFlash(w, flashError, "Something went wrong")
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.setSessionCookie(w, token)
	h.setFlash(w, flashSuccess, "Successfully logged in")
	span.LogKV("event", "user logged in")
	http.Redirect(w, r, "/feeds", http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-logout")
	defer span.Finish()
	if session := sessionFromContext(r.Context()); session != nil {
		if err := h.sessions.Destroy(ctx, session.Token); err != nil {
			h.logger.Error("Failure destroying session: ", err)
			span.LogFields(otLog.Error(err))
		}
	}
	h.clearSessionCookie(w)
	span.LogKV("event", "user logged out")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) settings(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-settings")
	defer span.Finish()
	session := sessionFromContext(ctx)

	user, err := h.repository.GetUserByID(ctx, session.UserID)
	if err != nil {
		h.logger.Error("Failure reading user from database: ", err)
		span.LogFields(otLog.Error(err))
		ErrInternal(errors.New("failure reading user")).Render(w, r)
		return
	}
	if user == nil {
		// the session outlived its user
		h.clearSessionCookie(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "settings.html", settingsPage{page: h.newPage(w, r, "Settings"), Email: user.Email})
}

type changePasswordForm struct {
	CurrentPassword  string
	NewPassword      string
	NewPasswordCheck string
}

// Validate password change form fields
func (f changePasswordForm) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.CurrentPassword, validation.Required),
		validation.Field(&f.NewPassword, validation.Required, validation.Length(12, 128)),
	)
}

const (
	passwordChangedSubject = "Your password was changed"
	passwordChangedText    = "The password of your Servare account was just changed. If this wasn't you, change it back immediately."
	passwordChangedHTML    = "<p>The password of your Servare account was just changed. If this wasn't you, change it back immediately.</p>"
)

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	span, ctx := h.setupTracingSpan(r, "serve-change-password")
	defer span.Finish()
	session := sessionFromContext(ctx)

	form := changePasswordForm{
		CurrentPassword:  r.PostFormValue("current_password"),
		NewPassword:      r.PostFormValue("new_password"),
		NewPasswordCheck: r.PostFormValue("new_password_check"),
	}
	if form.NewPassword != form.NewPasswordCheck {
		h.setFlash(w, flashError, "You entered two different new passwords - the field values must match.")
		http.Redirect(w, r, "/settings", http.StatusSeeOther)
		return
	}
	if err := form.Validate(); err != nil {
		h.setFlash(w, flashError, "The new password must be between 12 and 128 characters long.")
		http.Redirect(w, r, "/settings", http.StatusSeeOther)
		return
	}
	user, err := h.repository.GetUserByID(ctx, session.UserID)
	if err != nil {
		h.logger.Error("Failure reading user from database: ", err)
		span.LogFields(otLog.Error(err))
		ErrInternal(errors.New("failure reading user")).Render(w, r)
		return
	}
	if user == nil {
		h.clearSessionCookie(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	var authErr error
	if err := h.pool.Do(ctx, func() {
		_, authErr = authentication.Authenticate(ctx, h.repository, user.Email, form.CurrentPassword)
	}); err != nil {
		authErr = err
	}
	if authErr != nil {
		if errors.Is(authErr, authentication.ErrInvalidCredentials) {
			h.setFlash(w, flashError, "The current password is incorrect.")
			http.Redirect(w, r, "/settings", http.StatusSeeOther)
			return
		}
		h.logger.Error("Failure verifying current password: ", authErr)
		span.LogFields(otLog.Error(authErr))
		ErrInternal(errors.New("failure verifying password")).Render(w, r)
		return
	}
	var passwordHash string
	var hashErr error
	if err := h.pool.Do(ctx, func() {
		passwordHash, hashErr = authentication.HashPassword(form.NewPassword)
	}); err != nil {
		hashErr = err
	}
	if hashErr != nil {
		h.logger.Error("Failure hashing new password: ", hashErr)
		span.LogFields(otLog.Error(hashErr))
		ErrInternal(errors.New("failure updating password")).Render(w, r)
		return
	}
	if err := h.repository.UpdateUserPassword(ctx, session.UserID, passwordHash); err != nil {
		h.logger.Error("Failure updating password: ", err)
		span.LogFields(otLog.Error(err))
		ErrInternal(errors.New("failure updating password")).Render(w, r)
		return
	}
	span.LogKV("event", "changed user password")
	if h.email != nil {
		if err := h.email.SendEmail(ctx, user.Email, passwordChangedSubject, passwordChangedHTML, passwordChangedText); err != nil {
			h.logger.Error("Failure sending password change notification: ", err)
			span.LogFields(otLog.Error(err))
		}
	}
	h.setFlash(w, flashSuccess, "Your password has been changed.")
	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

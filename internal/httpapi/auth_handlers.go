package httpapi

import (
	"net/http"
	"sort"
	"time"

	"lawdesk.org/internal/audit"
	"lawdesk.org/internal/auth"
)

const entityUser = "user"

type registerRequest struct {
	DNI       string `json:"dni"`
	Phone     string `json:"phone"`
	Telefono  string `json:"telefono"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Specialty string `json:"specialty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type profileRequest struct {
	Name      *string `json:"name"`
	Surname   *string `json:"surname"`
	Phone     *string `json:"phone"`
	Email     *string `json:"email"`
	Specialty *string `json:"specialty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type forgotPasswordResponse struct {
	Message   string     `json:"message"`
	Token     string     `json:"reset_token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	phone := req.Phone
	if phone == "" {
		phone = req.Telefono
	}
	sess, err := a.auth.Register(r.Context(), auth.RegisterInput{
		DNI:       req.DNI,
		Phone:     phone,
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Surname:   req.Surname,
		Specialty: req.Specialty,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	a.record(r, sess.User.ID, audit.ActionRegister, entityUser, sess.User.ID, map[string]any{"role": sess.User.Role.String()})
	writeData(w, http.StatusCreated, sess)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	sess, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	a.record(r, sess.User.ID, audit.ActionLogin, entityUser, sess.User.ID, nil)
	writeData(w, http.StatusOK, sess)
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	sess, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	res, err := a.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := forgotPasswordResponse{Message: res.Message}
	if a.opts.ExposeResetToken && res.Token != "" {
		out.Token = res.Token
		out.ExpiresAt = &res.ExpiresAt
	}
	writeData(w, http.StatusOK, out)
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	userID, err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	a.record(r, userID, audit.ActionResetPassword, entityUser, userID, nil)
	writeMessage(w, http.StatusOK, "password has been reset")
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	profile, err := a.auth.Profile(r.Context(), principalOf(r).ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, profile)
}

func (a *API) updateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	p := principalOf(r)
	profile, err := a.auth.UpdateProfile(r.Context(), p.ID, auth.ProfilePatch{
		Name:      req.Name,
		Surname:   req.Surname,
		Phone:     req.Phone,
		Email:     req.Email,
		Specialty: req.Specialty,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	a.record(r, p.ID, audit.ActionUpdate, entityUser, p.ID, map[string]any{"fields": changedFields(req)})
	writeData(w, http.StatusOK, profile)
}

func changedFields(req profileRequest) []string {
	var out []string
	for name, v := range map[string]*string{
		"name": req.Name, "surname": req.Surname, "phone": req.Phone,
		"email": req.Email, "specialty": req.Specialty,
	} {
		if v != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	p := principalOf(r)
	if err := a.auth.ChangePassword(r.Context(), p.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeAppError(w, r, err)
		return
	}
	a.record(r, p.ID, audit.ActionChangePassword, entityUser, p.ID, nil)
	writeMessage(w, http.StatusOK, "password updated")
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	p := principalOf(r)
	if err := a.auth.Logout(r.Context(), p.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	a.record(r, p.ID, audit.ActionLogout, entityUser, p.ID, nil)
	writeMessage(w, http.StatusOK, "logged out")
}

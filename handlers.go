package authcore

import (
	"net/http"

	"github.com/gorilla/mux"
)

// =============================================================================
// Auth
// =============================================================================

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if isForm(r) {
		if err := parseForm(w, r); err != nil {
			writeError(w, s.Logger, err)
			return
		}
		req = SignupRequest{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.Logger, err)
		return
	}

	if _, err := s.Authenticator.Signup(r.Context(), req); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully"})
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if isForm(r) {
		if err := parseForm(w, r); err != nil {
			writeError(w, s.Logger, err)
			return
		}
		req = SigninRequest{
			Email:      r.FormValue("email"),
			Password:   r.FormValue("password"),
			RememberMe: r.FormValue("rememberMe") == "true" || r.FormValue("rememberMe") == "on",
		}
	} else if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.Logger, err)
		return
	}

	session, err := s.Authenticator.Signin(r.Context(), req)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	s.Sessions.Write(w, session)
	writeJSON(w, http.StatusOK, session.User)
}

// handleOAuth signs in with a provider ID token. Only the identity the
// verifier extracts from the token is trusted, never the request body.
func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	var req FederatedSigninRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if s.Identity == nil {
		writeError(w, s.Logger, NewError(KindUnauthenticated, "Federated sign-in is not configured", ""))
		return
	}
	if req.Credential == "" {
		writeError(w, s.Logger, NewError(KindUnauthenticated, "Unauthorized", "credential"))
		return
	}

	a, err := s.Identity.VerifyIdentity(r.Context(), req.Credential)
	if err != nil {
		s.Logger.Info("federated credential rejected", "error", err)
		writeError(w, s.Logger, &Error{Kind: KindUnauthenticated, Message: "Invalid identity token", Err: err})
		return
	}
	session, err := s.Provisioner.Provision(r.Context(), a)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	s.Sessions.Write(w, session)
	writeJSON(w, http.StatusOK, session.User)
}

func (s *Server) handleSignout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "User has been logged out!"})
}

// =============================================================================
// Users
// =============================================================================

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFromContext(r.Context())
	var upd AccountUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	user, err := s.Accounts.UpdateAccount(r.Context(), ac, mux.Vars(r)["id"], upd)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFromContext(r.Context())
	if err := s.Accounts.DeleteAccount(r.Context(), ac, mux.Vars(r)["id"]); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	s.Sessions.Clear(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "User has been deleted!"})
}

func (s *Server) handleUserListings(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFromContext(r.Context())
	listings, err := s.Listings.ListByOwner(r.Context(), ac, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	if listings == nil {
		listings = []*Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

// =============================================================================
// Listings
// =============================================================================

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := s.Listings.Describe(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFromContext(r.Context())
	var in ListingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	listing, err := s.Listings.Create(r.Context(), ac, in)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (s *Server) handleEditListing(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFromContext(r.Context())
	var in ListingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	listing, err := s.Listings.Edit(r.Context(), ac, mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	ac, _ := AuthFromContext(r.Context())
	if err := s.Listings.Delete(r.Context(), ac, mux.Vars(r)["id"]); err != nil {
		writeError(w, s.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Listing has been deleted"})
}

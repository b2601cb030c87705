package httpapi

import (
	"log/slog"
	"net/http"
)

// Router wires the API routes. The resume list is public; everything else
// behind /api requires the bearer credential cookie.
func Router(
	logger *slog.Logger,
	authService AuthService,
	authenticator Authenticator,
	userService UserService,
	resumeService ResumeService,
) http.Handler {
	users := &usersHandler{logger: logger, auth: authService, users: userService}
	resumes := &resumesHandler{logger: logger, resumes: resumeService}

	requireAuth := RequireAuth(logger, authenticator)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sign-up", users.signUp)
	mux.HandleFunc("POST /api/sign-in", users.signIn)
	mux.Handle("GET /api/users", requireAuth(http.HandlerFunc(users.profile)))
	mux.Handle("PATCH /api/users", requireAuth(http.HandlerFunc(users.updateProfile)))

	mux.Handle("POST /api/resumes", requireAuth(http.HandlerFunc(resumes.create)))
	mux.HandleFunc("GET /api/resumes", resumes.list)
	mux.Handle("GET /api/resumes/{resumeID}", requireAuth(http.HandlerFunc(resumes.get)))
	mux.Handle("PATCH /api/resumes/{resumeID}", requireAuth(http.HandlerFunc(resumes.update)))
	mux.Handle("DELETE /api/resumes/{resumeID}", requireAuth(http.HandlerFunc(resumes.delete)))

	return LogRequests(logger)(mux)
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/exef-pl/exef/docid"
	"github.com/exef-pl/exef/model"
)

const identityContextKey = "identity_id"
const tokenTTL = 24 * time.Hour

// claims is the JWT payload: subject is the identity id, matching the
// Python original's create_access_token(data={"sub": identity.id}).
type claims struct {
	jwt.RegisteredClaims
}

func (s *Server) issueToken(identityID string) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identityID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// requireAuth validates the Bearer token with echo-jwt and re-keys the
// parsed subject under identityContextKey, the same
// echojwt.WithConfig(SigningKey, TokenLookup) shape the teacher's own
// SetupRoutes uses to guard its protected group.
func (s *Server) requireAuth() echo.MiddlewareFunc {
	jwtMiddleware := echojwt.WithConfig(echojwt.Config{
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(claims)
		},
		SigningKey:  []byte(s.cfg.JWTSecret),
		TokenLookup: "header:Authorization:Bearer ",
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMiddleware(func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			parsedClaims, ok := token.Claims.(*claims)
			if !ok || parsedClaims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
			}
			c.Set(identityContextKey, parsedClaims.Subject)
			return next(c)
		})(c)
	}
}

// identityID returns the authenticated identity's id. Only call from
// handlers mounted behind requireAuth.
func identityID(c echo.Context) string {
	id, _ := c.Get(identityContextKey).(string)
	return id
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Nip       string `json:"nip"`
}

// Register creates a new identity, rejecting an email already in use, the
// way register() in the Python auth router does.
func (s *Server) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane rejestracji")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Nip != "" {
		if _, ok := docid.CleanNIP(req.Nip); !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowy NIP")
		}
	}

	var existing int
	_ = s.mainDB.Get(&existing, `SELECT COUNT(*) FROM identities WHERE email = ?`, req.Email)
	if existing > 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "email już zarejestrowany")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	identity := model.Identity{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Nip:          req.Nip,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.mainDB.Exec(`INSERT INTO identities
		(id, email, password_hash, first_name, last_name, nip, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		identity.ID, identity.Email, identity.PasswordHash, identity.FirstName, identity.LastName,
		identity.Nip, now, now)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, identity)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login verifies credentials and issues a bearer token, the Go counterpart
// of the Python OAuth2PasswordRequestForm login endpoint.
func (s *Server) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane logowania")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var identity model.Identity
	if err := s.mainDB.Get(&identity, `SELECT * FROM identities WHERE email = ?`, req.Email); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "nieprawidłowy email lub hasło")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "nieprawidłowy email lub hasło")
	}

	token, err := s.issueToken(identity.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// Me returns the authenticated identity's profile.
func (s *Server) Me(c echo.Context) error {
	var identity model.Identity
	if err := s.mainDB.Get(&identity, `SELECT * FROM identities WHERE id = ?`, identityID(c)); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "tożsamość nie znaleziona")
	}
	return c.JSON(http.StatusOK, identity)
}

type updateMeRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Avatar    *string `json:"avatar"`
	Color     *string `json:"color"`
}

// UpdateMe patches a subset of the authenticated identity's own profile
// fields, mirroring the Python PATCH /auth/me's exclude_unset semantics.
func (s *Server) UpdateMe(c echo.Context) error {
	var req updateMeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "nieprawidłowe dane")
	}

	now := time.Now().UTC()
	if req.FirstName != nil {
		if _, err := s.mainDB.Exec(`UPDATE identities SET first_name = ?, updated_at = ? WHERE id = ?`, *req.FirstName, now, identityID(c)); err != nil {
			return err
		}
	}
	if req.LastName != nil {
		if _, err := s.mainDB.Exec(`UPDATE identities SET last_name = ?, updated_at = ? WHERE id = ?`, *req.LastName, now, identityID(c)); err != nil {
			return err
		}
	}
	if req.Avatar != nil {
		if _, err := s.mainDB.Exec(`UPDATE identities SET avatar = ?, updated_at = ? WHERE id = ?`, *req.Avatar, now, identityID(c)); err != nil {
			return err
		}
	}
	if req.Color != nil {
		if _, err := s.mainDB.Exec(`UPDATE identities SET color = ?, updated_at = ? WHERE id = ?`, *req.Color, now, identityID(c)); err != nil {
			return err
		}
	}

	return s.Me(c)
}

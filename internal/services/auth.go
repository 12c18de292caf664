package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restopos/internal/auth"
	"restopos/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ReasonExpired   = "Su plan ha vencido. Por favor realice el pago para continuar disfrutando del servicio."
	ReasonSuspended = "Su cuenta ha sido suspendida. Para más información contacte al equipo de soporte."
)

const (
	minNameLen       = 2
	minUsernameLen   = 3
	minPasswordLen   = 6
	minRestaurantLen = 3
)

// AuthService owns accounts, tenants and staff delegation.
type AuthService struct {
	db                *gorm.DB
	tokens            *auth.Tokens
	trialDays         int
	allowRegistration bool
	cost              int
	now               func() time.Time
}

func NewAuthService(db *gorm.DB, tokens *auth.Tokens, trialDays int, allowRegistration bool) *AuthService {
	if trialDays <= 0 {
		trialDays = 30
	}
	return &AuthService{
		db:                db,
		tokens:            tokens,
		trialDays:         trialDays,
		allowRegistration: allowRegistration,
		cost:              bcrypt.DefaultCost,
		now:               time.Now,
	}
}

type RegisterInput struct {
	Name       string `json:"nombre"`
	Username   string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"rol"`
	Restaurant string `json:"nombreRestaurante"`
	Site       string `json:"sede"`
}

type LoginInput struct {
	Username string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is what register and login hand back. Token is empty while the
// account waits for approval.
type AuthResult struct {
	Token            string       `json:"token,omitempty"`
	User             *models.User `json:"usuario,omitempty"`
	RequiresApproval bool         `json:"requiereAprobacion,omitempty"`
	IsNew            bool         `json:"welcomeMessage,omitempty"`
}

func (s *AuthService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *AuthService) issue(u *models.User) (string, error) {
	return s.tokens.GenerateToken(u.ID, u.TenantID, u.Role, u.Name)
}

func (in *RegisterInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Restaurant = strings.TrimSpace(in.Restaurant)
	in.Site = strings.TrimSpace(in.Site)
	in.Role = strings.TrimSpace(in.Role)

	switch {
	case in.Name == "" || in.Username == "" || in.Password == "" || in.Restaurant == "":
		return invalid("Por favor complete todos los campos obligatorios")
	case len(in.Name) < minNameLen:
		return invalid("El nombre debe tener al menos %d caracteres", minNameLen)
	case len(in.Username) < minUsernameLen:
		return invalid("El usuario debe tener al menos %d caracteres", minUsernameLen)
	case len(in.Password) < minPasswordLen:
		return invalid("La contraseña debe tener al menos %d caracteres", minPasswordLen)
	case len(in.Restaurant) < minRestaurantLen:
		return invalid("El nombre del restaurante debe tener al menos %d caracteres", minRestaurantLen)
	}
	if in.Role == "" {
		in.Role = models.RoleAdmin
	}
	if !models.IsValidRole(in.Role) || in.Role == models.RoleSuperAdmin {
		return invalid("Rol no válido")
	}
	return nil
}

// Register creates a new restaurant with its first admin, or, when the
// restaurant already has an admin, a staff request that waits for approval.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	result := &AuthResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.User{}).Where("username = ?", in.Username).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return invalid("El usuario ya está registrado")
		}

		var tenant models.Tenant
		err := tx.Where("LOWER(name) = ? AND LOWER(site) = ?", strings.ToLower(in.Restaurant), strings.ToLower(in.Site)).
			First(&tenant).Error
		switch {
		case err == nil:
			var admins int64
			if err := tx.Model(&models.User{}).Where("tenant_id = ? AND role = ?", tenant.ID, models.RoleAdmin).Count(&admins).Error; err != nil {
				return err
			}
			if admins > 0 {
				user := &models.User{
					TenantID:        tenant.ID,
					Name:            in.Name,
					Username:        in.Username,
					PasswordHash:    hash,
					Role:            in.Role,
					PendingApproval: true,
				}
				result.User = user
				result.RequiresApproval = true
				return tx.Create(user).Error
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if !s.allowRegistration {
				return fmt.Errorf("registro de restaurantes deshabilitado: %w", ErrForbidden)
			}
			paidUntil := s.now().AddDate(0, 0, s.trialDays)
			tenant = models.Tenant{Name: in.Restaurant, Site: in.Site, PaidUntil: &paidUntil}
			if err := tx.Create(&tenant).Error; err != nil {
				return err
			}
		default:
			return err
		}

		// The founder of a restaurant is always its admin.
		user := &models.User{
			TenantID:     tenant.ID,
			Tenant:       &tenant,
			Name:         in.Name,
			Username:     in.Username,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
			Active:       true,
		}
		result.User = user
		result.IsNew = true
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}

	if !result.RequiresApproval {
		if result.Token, err = s.issue(result.User); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Login checks credentials. An expired subscription blocks the whole
// restaurant before the blocked check runs.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if username == "" || in.Password == "" {
		return nil, invalid("Por favor ingrese usuario y contraseña")
	}

	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Preload("Tenant").Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("usuario inactivo: %w", ErrUnauthorized)
	}
	if err := s.checkTenant(db, user.Tenant); err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrUnauthorized
	}

	now := s.now()
	if err := db.Model(&user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	token, err := s.issue(&user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: &user}, nil
}

// checkTenant blocks an expired tenant on the spot and rejects blocked ones.
func (s *AuthService) checkTenant(db *gorm.DB, t *models.Tenant) error {
	if t == nil {
		return nil
	}
	now := s.now()
	if !t.Blocked && t.PaidUntil != nil && t.PaidUntil.Before(now) {
		if _, err := blockTenants(db.Where("id = ?", t.ID), ReasonExpired, now); err != nil {
			return err
		}
		t.Blocked = true
		t.BlockReason = ReasonExpired
	}
	if t.Blocked {
		reason := t.BlockReason
		if reason == "" {
			reason = ReasonSuspended
		}
		return &BlockedError{Reason: reason}
	}
	return nil
}

// Resolve turns token claims into an Actor, re-checking that the user is
// still active and the restaurant is not blocked.
func (s *AuthService) Resolve(ctx context.Context, claims *auth.Claims) (Actor, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Tenant").First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, fmt.Errorf("usuario no encontrado: %w", ErrUnauthorized)
		}
		return Actor{}, err
	}
	if !user.Active {
		return Actor{}, fmt.Errorf("usuario inactivo: %w", ErrUnauthorized)
	}
	if user.Role != models.RoleSuperAdmin {
		if err := s.checkTenant(s.db.WithContext(ctx), user.Tenant); err != nil {
			return Actor{}, err
		}
	}
	return Actor{UserID: user.ID, TenantID: user.TenantID, Role: user.Role, Name: user.Name}, nil
}

func (s *AuthService) ValidateToken(token string) (*auth.Claims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnauthorized)
	}
	return claims, nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Tenant").First(&user, userID).Error; err != nil {
		return nil, notFound(err, "usuario")
	}
	return &user, nil
}

// EnsureSuperAdmin creates or refreshes the platform operator account.
func (s *AuthService) EnsureSuperAdmin(ctx context.Context, username, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || len(password) < minPasswordLen {
		return invalid("Credenciales de superadmin no válidas")
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	db := s.db.WithContext(ctx)
	var user models.User
	err = db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&models.User{
			Name:         "Superadmin",
			Username:     username,
			PasswordHash: hash,
			Role:         models.RoleSuperAdmin,
			Active:       true,
		}).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&user).Updates(map[string]interface{}{
		"password_hash": hash,
		"role":          models.RoleSuperAdmin,
		"active":        true,
	}).Error
}

// Requests lists staff accounts waiting for an admin of the tenant.
func (s *AuthService) Requests(ctx context.Context, actor Actor) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND pending_approval = ? AND active = ?", actor.TenantID, true, false).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

const (
	ActionApprove = "aprobar"
	ActionReject  = "rechazar"
)

// DecideRequest approves or rejects a pending staff account. Approved staff
// get the default permission set delegated from the approving admin.
func (s *AuthService) DecideRequest(ctx context.Context, actor Actor, userID uint, action string) error {
	if action != ActionApprove && action != ActionReject {
		return invalid("Acción no válida")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return notFound(err, "usuario")
		}
		if user.TenantID != actor.TenantID {
			return fmt.Errorf("usuario de otro restaurante: %w", ErrForbidden)
		}
		if !user.PendingApproval {
			return invalid("El usuario no tiene una solicitud pendiente")
		}

		if action == ActionReject {
			return tx.Delete(&user).Error
		}

		err := tx.Model(&user).Updates(map[string]interface{}{"active": true, "pending_approval": false}).Error
		if err != nil {
			return err
		}
		if user.Role == models.RoleAdmin {
			return nil
		}
		return tx.Create(&models.StaffPermission{
			TenantID:    actor.TenantID,
			AdminID:     actor.UserID,
			StaffID:     user.ID,
			Permissions: models.DefaultPermissions(),
			Active:      true,
		}).Error
	})
}

// Permissions returns the delegated flags of a staff member. Admins are
// never looked up; callers check IsAdmin first.
func (s *AuthService) Permissions(ctx context.Context, actor Actor) (models.Permissions, error) {
	var rel models.StaffPermission
	err := s.db.WithContext(ctx).
		Where("staff_id = ? AND tenant_id = ? AND active = ?", actor.UserID, actor.TenantID, true).
		Order("updated_at DESC").
		First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Permissions{}, fmt.Errorf("no tienes permisos asignados: %w", ErrForbidden)
	}
	if err != nil {
		return models.Permissions{}, err
	}
	return rel.Permissions, nil
}

// Can reports whether actor may perform the named action.
func (s *AuthService) Can(ctx context.Context, actor Actor, perm string) error {
	if actor.IsAdmin() {
		return nil
	}
	perms, err := s.Permissions(ctx, actor)
	if err != nil {
		return err
	}
	if !perms.Allows(perm) {
		return fmt.Errorf("no tienes permiso para: %s: %w", perm, ErrForbidden)
	}
	return nil
}

func (s *AuthService) ListStaff(ctx context.Context, actor Actor) ([]models.StaffPermission, error) {
	var out []models.StaffPermission
	err := s.db.WithContext(ctx).Preload("Staff").
		Where("tenant_id = ? AND admin_id = ? AND active = ?", actor.TenantID, actor.UserID, true).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// AddStaff delegates the default permissions to a staff member of the same
// restaurant, reactivating an earlier delegation when one exists.
func (s *AuthService) AddStaff(ctx context.Context, actor Actor, staffID uint) (*models.StaffPermission, error) {
	if staffID == actor.UserID {
		return nil, invalid("No puedes agregarte a ti mismo")
	}
	var rel models.StaffPermission
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var staff models.User
		if err := tx.Where("tenant_id = ?", actor.TenantID).First(&staff, staffID).Error; err != nil {
			return notFound(err, "mesero")
		}

		err := tx.Where("admin_id = ? AND staff_id = ?", actor.UserID, staffID).First(&rel).Error
		switch {
		case err == nil:
			if rel.Active {
				return invalid("Este mesero ya está agregado")
			}
			rel.Active = true
			if err := tx.Model(&rel).UpdateColumn("active", true).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			rel = models.StaffPermission{
				TenantID:    actor.TenantID,
				AdminID:     actor.UserID,
				StaffID:     staffID,
				Permissions: models.DefaultPermissions(),
				Active:      true,
			}
			if err := tx.Create(&rel).Error; err != nil {
				return err
			}
		default:
			return err
		}
		rel.Staff = &staff
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// UpdateStaffPermissions merges the given flags into the delegation.
func (s *AuthService) UpdateStaffPermissions(ctx context.Context, actor Actor, relID uint, flags map[string]bool) (*models.StaffPermission, error) {
	var rel models.StaffPermission
	db := s.db.WithContext(ctx)
	if err := db.Where("tenant_id = ?", actor.TenantID).First(&rel, relID).Error; err != nil {
		return nil, notFound(err, "relación")
	}
	for name, v := range flags {
		if !rel.Permissions.Set(name, v) {
			return nil, invalid("Permiso desconocido: %s", name)
		}
	}
	if err := db.Save(&rel).Error; err != nil {
		return nil, err
	}
	return &rel, nil
}

func (s *AuthService) RemoveStaff(ctx context.Context, actor Actor, relID uint) error {
	res := s.db.WithContext(ctx).Model(&models.StaffPermission{}).
		Where("id = ? AND tenant_id = ?", relID, actor.TenantID).
		UpdateColumn("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("relación: %w", ErrNotFound)
	}
	return nil
}

// ExternalAccount is an identity vouched for by the delivery platform.
type ExternalAccount struct {
	ExternalID string
	Name       string
	Username   string
	Site       string
}

// LoginExternal signs in an account authenticated by the delivery platform,
// provisioning a restaurant on a trial the first time it is seen. IsNew is
// set on the result for first logins.
func (s *AuthService) LoginExternal(ctx context.Context, acct ExternalAccount, password string) (*AuthResult, error) {
	username := strings.ToLower(strings.TrimSpace(acct.Username))
	if username == "" {
		return nil, invalid("Faltan credenciales")
	}

	result := &AuthResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Preload("Tenant").Where("username = ?", username).First(&user).Error
		if err == nil {
			result.User = &user
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		name := strings.TrimSpace(acct.Name)
		if len(name) < minNameLen {
			name = strings.SplitN(username, "@", 2)[0]
		}
		if len(name) < minNameLen {
			name = "Usuario Mandao"
		}
		site := strings.TrimSpace(acct.Site)
		if site == "" {
			site = "Principal"
		}
		hash, err := s.hash(password)
		if err != nil {
			return err
		}

		paidUntil := s.now().AddDate(0, 0, s.trialDays)
		tenant := models.Tenant{Name: name, Site: site, PaidUntil: &paidUntil, MandaoUserID: acct.ExternalID}
		if err := tx.Where("LOWER(name) = ? AND LOWER(site) = ?", strings.ToLower(name), strings.ToLower(site)).
			FirstOrCreate(&tenant).Error; err != nil {
			return err
		}
		user = models.User{
			TenantID:     tenant.ID,
			Tenant:       &tenant,
			Name:         name,
			Username:     username,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
			Active:       true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		result.User = &user
		result.IsNew = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	user := result.User
	if !user.Active {
		return nil, fmt.Errorf("usuario inactivo: %w", ErrUnauthorized)
	}
	db := s.db.WithContext(ctx)
	if err := s.checkTenant(db, user.Tenant); err != nil {
		return nil, err
	}
	now := s.now()
	if err := db.Model(user).UpdateColumn("last_login_at", now).Error; err != nil {
		return nil, err
	}
	user.LastLoginAt = &now

	if result.Token, err = s.issue(user); err != nil {
		return nil, err
	}
	return result, nil
}

// ListUsers is the superadmin view of every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := s.db.WithContext(ctx).Preload("Tenant").Order("created_at DESC").Find(&out).Error
	return out, err
}

func (s *AuthService) tenantOf(tx *gorm.DB, userID uint) (*models.Tenant, error) {
	var user models.User
	if err := tx.Preload("Tenant").First(&user, userID).Error; err != nil {
		return nil, notFound(err, "usuario")
	}
	if user.Tenant == nil {
		return nil, invalid("El usuario no pertenece a ningún restaurante")
	}
	return user.Tenant, nil
}

// ToggleBlock flips the blocked flag of the user's restaurant.
func (s *AuthService) ToggleBlock(ctx context.Context, userID uint) (*models.Tenant, error) {
	var tenant *models.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.tenantOf(tx, userID)
		if err != nil {
			return err
		}
		tenant = t
		if t.Blocked {
			t.Blocked, t.BlockReason, t.BlockedAt = false, "", nil
		} else {
			now := s.now()
			t.Blocked, t.BlockReason, t.BlockedAt = true, ReasonSuspended, &now
		}
		return tx.Model(t).Select("blocked", "block_reason", "blocked_at").Updates(t).Error
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// SetPaidUntil moves the restaurant's paid-until date.
func (s *AuthService) SetPaidUntil(ctx context.Context, userID uint, paidUntil time.Time) (*models.Tenant, error) {
	if paidUntil.IsZero() {
		return nil, invalid("Debe proporcionar una fecha de pago")
	}
	var tenant *models.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.tenantOf(tx, userID)
		if err != nil {
			return err
		}
		tenant = t
		t.PaidUntil = &paidUntil
		return tx.Model(t).UpdateColumn("paid_until", paidUntil).Error
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// ConfirmPayment extends the subscription by one month, counted from the
// current paid-until date or from today when it already lapsed. A restaurant
// blocked for non-payment is unblocked.
func (s *AuthService) ConfirmPayment(ctx context.Context, userID uint) (*models.Tenant, error) {
	var tenant *models.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.tenantOf(tx, userID)
		if err != nil {
			return err
		}
		tenant = t
		now := s.now()
		next := NextPaidUntil(t.PaidUntil, now)
		t.PaidUntil = &next
		updates := map[string]interface{}{"paid_until": next}
		if t.Blocked && t.BlockReason == ReasonExpired {
			t.Blocked, t.BlockReason, t.BlockedAt = false, "", nil
			updates["blocked"] = false
			updates["block_reason"] = ""
			updates["blocked_at"] = nil
		}
		return tx.Model(t).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

// NextPaidUntil adds one month to current, or to now when current is before
// today.
func NextPaidUntil(current *time.Time, now time.Time) time.Time {
	base := now
	if current != nil && !current.Before(startOfDay(now)) {
		base = *current
	}
	return base.AddDate(0, 1, 0)
}

package service

import (
	"time"

	"github.com/wfunc/carousel-dispenser/internal/config"
	"github.com/wfunc/carousel-dispenser/internal/errors"
	"github.com/wfunc/carousel-dispenser/internal/utils"
	"go.uber.org/zap"
)

// AuthService 管理端认证服务
// 单管理员账号，凭据来自配置（密码哈希），不建用户表
type AuthService struct {
	cfg        *config.SecurityConfig
	jwtManager *utils.JWTManager
	logger     *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(cfg *config.SecurityConfig, log *zap.Logger) *AuthService {
	expiry := time.Duration(cfg.JWT.ExpireHours) * time.Hour
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &AuthService{
		cfg:        cfg,
		jwtManager: utils.NewJWTManager(cfg.JWT.Secret, expiry),
		logger:     log,
	}
}

// LoginResult 登录结果
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login 校验管理员凭据并签发访问令牌
func (s *AuthService) Login(username, password string) (*LoginResult, error) {
	if username != s.cfg.Admin.Username {
		s.logger.Warn("登录失败：用户名不匹配", zap.String("username", username))
		return nil, errors.New(errors.ErrAuthentication, "用户名或密码错误")
	}

	ok, err := utils.VerifyPassword(password, s.cfg.Admin.PasswordHash)
	if err != nil || !ok {
		s.logger.Warn("登录失败：密码校验未通过", zap.String("username", username))
		return nil, errors.New(errors.ErrAuthentication, "用户名或密码错误")
	}

	token, err := s.jwtManager.GenerateAccessToken(1, username, "admin")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrUnknown, "令牌签发失败")
	}

	s.logger.Info("管理员登录成功", zap.String("username", username))
	return &LoginResult{
		Token:     token,
		ExpiresAt: time.Now().Add(s.jwtManager.Expiry()),
	}, nil
}

// ValidateToken 校验访问令牌
func (s *AuthService) ValidateToken(token string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTokenInvalid, "无效的令牌")
	}
	return claims, nil
}

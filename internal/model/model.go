// Package model содержит доменные сущности сервиса лояльности.
package model

import "time"

// Role описывает роль пользователя в системе лояльности.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// IsAdmin сообщает, обладает ли роль административными правами.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// User представляет учётную запись участника программы лояльности.
// Идентификатор выдаётся внешним провайдером идентификации.
type User struct {
	ID        string    `json:"userId"`
	Email     string    `json:"email"`
	Points    int64     `json:"points"`
	QRCode    string    `json:"qr_code"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reward описывает позицию каталога вознаграждений.
type Reward struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PointsCost  int64  `json:"points_cost"`
	IsActive    bool   `json:"is_active"`
}

// RewardPatch описывает частичное обновление вознаграждения.
// Поле nil означает «не менять», что отличает отсутствие поля
// в запросе от явно переданного пустого значения.
type RewardPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PointsCost  *int64  `json:"points_cost"`
	IsActive    *bool   `json:"is_active"`
}

// IsEmpty сообщает, что патч не затрагивает ни одного поля.
func (p RewardPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.PointsCost == nil && p.IsActive == nil
}

// TransactionType описывает направление движения баллов.
type TransactionType string

const (
	TransactionEarned   TransactionType = "EARNED"
	TransactionRedeemed TransactionType = "REDEEMED"
)

// Transaction представляет неизменяемую запись журнала о движении баллов.
// Points всегда положительно, направление определяется полем Type.
type Transaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	RewardID  *string         `json:"rewardId,omitempty"`
	Type      TransactionType `json:"type"`
	Points    int64           `json:"points"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Summary содержит агрегированные показатели по всей системе.
type Summary struct {
	TotalUsers               int64 `json:"totalUsers"`
	TotalPointsInCirculation int64 `json:"totalPointsInCirculation"`
	TotalTransactions        int64 `json:"totalTransactions"`
}

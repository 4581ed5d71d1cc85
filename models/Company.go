package models

import (
	"time"

	"gorm.io/gorm"
)

// Company is an employer account. Companies post jobs and chat with
// applicants; they authenticate the same way users do.
type Company struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null"`
	Email       string `json:"email" gorm:"uniqueIndex"`
	Password    string `json:"-"`
	Description string `json:"description"`
	Logo        string `json:"logo"`
	Website     string `json:"website"`
	Industry    string `json:"industry"`
	City        string `json:"city"`
	Country     string `json:"country"`

	// Status
	Status   string `json:"status" gorm:"default:'pending'"` // pending, approved, rejected, suspended
	IsActive bool   `json:"is_active" gorm:"default:true"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`
}

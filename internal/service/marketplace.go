package service

import (
	"context"
	"math/big"

	"github.com/mmeshcher/skillmarket-system/internal/model"
)

// CreateCourse размещает новый курс от имени преподавателя и возвращает
// присвоенный идентификатор. Цена фиксируется при создании и не меняется.
func (s *Service) CreateCourse(ctx context.Context, instructor, title, description, imageURL string, price *big.Int) (int64, error) {
	if price == nil || price.Sign() <= 0 {
		return 0, ErrInvalidPrice
	}

	return s.repo.CreateCourse(ctx, model.Course{
		Title:       title,
		Description: description,
		ImageURL:    imageURL,
		Price:       price,
		Instructor:  instructor,
	})
}

// PurchaseCourse покупает курс для студента. Цена списывается с его счёта в
// пределах лимита, заранее выданного казне площадки вызовом approve; выплата
// преподавателю и комиссия зачисляются в той же транзакции.
func (s *Service) PurchaseCourse(ctx context.Context, student string, courseID int64) error {
	return s.repo.PurchaseCourse(ctx, student, courseID, s.treasury)
}

// GetCourse возвращает курс по идентификатору.
func (s *Service) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	return s.repo.GetCourse(ctx, id)
}

// GetActiveCourses возвращает все активные курсы в порядке создания.
func (s *Service) GetActiveCourses(ctx context.Context) ([]model.Course, error) {
	return s.repo.GetActiveCourses(ctx)
}

// GetStudentCourses возвращает курсы, купленные студентом.
func (s *Service) GetStudentCourses(ctx context.Context, student string) ([]model.Course, error) {
	return s.repo.GetStudentCourses(ctx, student)
}

// HasUserPurchasedCourse сообщает, покупал ли пользователь указанный курс.
// Для несуществующего курса возвращает false.
func (s *Service) HasUserPurchasedCourse(ctx context.Context, user string, courseID int64) (bool, error) {
	return s.repo.HasPurchased(ctx, user, courseID)
}

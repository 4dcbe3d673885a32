package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/skillmarket-system/internal/model"
	"github.com/mmeshcher/skillmarket-system/internal/validation"
)

type courseResponse struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	ImageURL      string `json:"imageUrl"`
	Price         string `json:"price"`
	Instructor    string `json:"instructor"`
	IsActive      bool   `json:"isActive"`
	StudentsCount int64  `json:"studentsCount"`
	CreatedAt     string `json:"createdAt"`
}

func toCourseResponse(c model.Course) courseResponse {
	return courseResponse{
		ID:            c.ID,
		Title:         c.Title,
		Description:   c.Description,
		ImageURL:      c.ImageURL,
		Price:         c.Price.String(),
		Instructor:    c.Instructor,
		IsActive:      c.IsActive,
		StudentsCount: c.StudentsCount,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}

func courseIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, "COURSE_NOT_FOUND", "course not found")
		return 0, false
	}
	return id, true
}

type createCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Price       string `json:"price"`
}

type createCourseResponse struct {
	ID int64 `json:"id"`
}

// CreateCourse размещает новый курс от имени вызывающего.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	instructor, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req createCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	price, ok := validation.ParseAmount(req.Price)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_PRICE", "price must be a non-negative integer")
		return
	}

	id, err := h.service.CreateCourse(r.Context(), instructor, req.Title, req.Description, req.ImageURL, price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createCourseResponse{ID: id})
}

// GetCourses возвращает все активные курсы в порядке создания.
func (h *Handler) GetCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.GetActiveCourses(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if len(courses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]courseResponse, 0, len(courses))
	for _, c := range courses {
		resp = append(resp, toCourseResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCourse возвращает курс по идентификатору.
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := courseIDFromURL(w, r)
	if !ok {
		return
	}

	course, err := h.service.GetCourse(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCourseResponse(*course))
}

// PurchaseCourse покупает курс для вызывающего. Требует заранее выданного
// approve на адрес казны площадки не меньше цены курса.
func (h *Handler) PurchaseCourse(w http.ResponseWriter, r *http.Request) {
	student, ok := callerAccount(w, r)
	if !ok {
		return
	}

	id, ok := courseIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.service.PurchaseCourse(r.Context(), student, id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetMyCourses возвращает курсы, купленные вызывающим.
func (h *Handler) GetMyCourses(w http.ResponseWriter, r *http.Request) {
	student, ok := callerAccount(w, r)
	if !ok {
		return
	}

	courses, err := h.service.GetStudentCourses(r.Context(), student)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if len(courses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]courseResponse, 0, len(courses))
	for _, c := range courses {
		resp = append(resp, toCourseResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

type hasPurchasedResponse struct {
	User      string `json:"user"`
	CourseID  int64  `json:"courseId"`
	Purchased bool   `json:"purchased"`
}

// HasPurchased сообщает, покупал ли пользователь указанный курс.
// Для несуществующего курса возвращает false.
func (h *Handler) HasPurchased(w http.ResponseWriter, r *http.Request) {
	user, ok := parseAddress(w, r.URL.Query().Get("user"), "user")
	if !ok {
		return
	}

	id, ok := courseIDFromURL(w, r)
	if !ok {
		return
	}

	purchased, err := h.service.HasUserPurchasedCourse(r.Context(), user, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, hasPurchasedResponse{
		User:      user,
		CourseID:  id,
		Purchased: purchased,
	})
}

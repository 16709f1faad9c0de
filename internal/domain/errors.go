package domain

import "errors"

var (
	// ErrRendererNotFound - для фида не зарегистрирован рендерер. Фатально для сборки.
	ErrRendererNotFound = errors.New("renderer not found for feed")
	// ErrNoCategories - источник данных вернул пустой список категорий.
	ErrNoCategories = errors.New("failed to get categories")
	// ErrNoOffers - источник данных сообщил о нулевом количестве предложений.
	ErrNoOffers = errors.New("failed to enquire the total number of offers")
	// ErrRenderRecord - не удалось отрисовать одну категорию или одно предложение.
	ErrRenderRecord = errors.New("record rendering failed")
	// ErrPageFetch - не удалось получить страницу предложений.
	ErrPageFetch = errors.New("offers page fetch failed")
	// ErrStorageIO - любая ошибка операции с хранилищем.
	ErrStorageIO = errors.New("storage operation failed")
	// ErrObjectNotFound - объект отсутствует в хранилище.
	ErrObjectNotFound = errors.New("object not found")
)

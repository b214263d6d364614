package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// AddrSetter определяет интерфейс для установки адреса из строки.
type AddrSetter interface {
	Set(string) error
}

// EnvServer устанавливает адрес сервера из переменной окружения.
//
// Если переменная окружения с именем envKey присутствует, функция вызывает метод Set интерфейса AddrSetter
// с её значением. В случае ошибки возвращает ошибку с описанием.
//
// addr   — объект, реализующий интерфейс AddrSetter.
// envKey — имя переменной окружения.
//
// Возвращает ошибку, если значение некорректно, иначе nil.
func EnvServer(addr AddrSetter, envKey string) error {
	if envVal, ok := os.LookupEnv(envKey); ok {
		if err := addr.Set(envVal); err != nil {
			return fmt.Errorf("invalid %s: %w", envKey, err)
		}
	}
	return nil
}

// EnvInt возвращает значение переменной окружения как int.
//
// key — имя переменной окружения.
//
// Если переменная не задана или пуста, возвращает 0 и nil.
// Если значение не может быть преобразовано в int, возвращает ошибку.
func EnvInt(key string) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

// EnvString возвращает значение переменной окружения как строку.
//
// key — имя переменной окружения.
//
// Если переменная не задана или пуста, возвращает пустую строку.
func EnvString(key string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return ""
}

// EnvBool возвращает значение переменной окружения как bool.
//
// key — имя переменной окружения.
//
// Второе значение равно false, если переменная не задана или пуста.
func EnvBool(key string) (bool, bool, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return false, false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, true, nil
}

// EnvDuration возвращает значение переменной окружения как time.Duration.
//
// key — имя переменной окружения.
//
// Принимает формат "6s", "500ms" или целое число секунд.
// Если переменная не задана или пуста, возвращает 0 и nil.
func EnvDuration(key string) (time.Duration, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return 0, nil
	}
	d, err := ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// ParseDuration парсит длительность в формате "1s", "1m" или целое число секунд.
// Если строка пуста, возвращает 0 и nil.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	return d, nil
}

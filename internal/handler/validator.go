package handler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Trans 全局翻译器，供 HandleParamError 使用
var Trans ut.Translator

// InitTrans 初始化 gin 校验器的错误翻译，locale 为 "zh" 或 "en"
func InitTrans(locale string) error {
	if binding.Validator == nil {
		binding.Validator = &defaultValidator{validator: validator.New()}
	}
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	// 错误信息使用 json / form 字段名，和界面传参一致
	v.RegisterTagNameFunc(fieldName)

	enT := en.New()
	uni := ut.New(enT, zh.New(), enT)
	trans, found := uni.GetTranslator(locale)
	if !found {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}

	var err error
	switch locale {
	case "zh":
		err = zh_translations.RegisterDefaultTranslations(v, trans)
	default:
		err = en_translations.RegisterDefaultTranslations(v, trans)
	}
	if err != nil {
		return err
	}
	Trans = trans
	return nil
}

func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// RemoveTopStruct 去掉错误字段中的结构体名前缀
func RemoveTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for field, err := range fields {
		res[field[strings.Index(field, ".")+1:]] = err
	}
	return res
}

// defaultValidator 在 binding.Validator 为空时兜底
type defaultValidator struct {
	validator *validator.Validate
}

func (v *defaultValidator) ValidateStruct(obj any) error {
	return v.validator.Struct(obj)
}

func (v *defaultValidator) Engine() any {
	return v.validator
}

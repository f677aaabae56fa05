package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"medoai/internal/service/flows"
)

type msgKey string

const (
	msgInvalidBody       msgKey = "invalid_body"
	msgInvalidInput      msgKey = "invalid_input"
	msgAuthRequired      msgKey = "auth_required"
	msgSessionExpired    msgKey = "session_expired"
	msgCSRF              msgKey = "csrf"
	msgInvalidCreds      msgKey = "invalid_credentials"
	msgEmailTaken        msgKey = "email_taken"
	msgInvalidEmail      msgKey = "invalid_email"
	msgWeakPassword      msgKey = "weak_password"
	msgUserNotFound      msgKey = "user_not_found"
	msgContentRequired   msgKey = "content_required"
	msgFileTooLarge      msgKey = "file_too_large"
	msgUnsupportedType   msgKey = "unsupported_type"
	msgEmptyFile         msgKey = "empty_file"
	msgNoFiles           msgKey = "no_files"
	msgFileNotFound      msgKey = "file_not_found"
	msgPermissionDenied  msgKey = "permission_denied"
	msgStorageFailed     msgKey = "storage_failed"
	msgAIFailed          msgKey = "ai_failed"
	msgBusy              msgKey = "busy"
	msgRateLimited       msgKey = "rate_limited"
	msgUnavailable       msgKey = "unavailable"
	msgQuizNotFound      msgKey = "quiz_not_found"
	msgQuizState         msgKey = "quiz_state"
	msgQuizIncomplete    msgKey = "quiz_incomplete"
	msgQuizRange         msgKey = "quiz_range"
	msgNoQuestions       msgKey = "no_questions"
	msgNoImages          msgKey = "no_images"
	msgPDFNameRequired   msgKey = "pdf_name_required"
	msgImageDecode       msgKey = "image_decode"
	msgNothingToExport   msgKey = "nothing_to_export"
	msgPDFFontMissing    msgKey = "pdf_font_missing"
	msgTooManyImages     msgKey = "too_many_images"
	msgRecordingRequired msgKey = "recording_required"
	msgStreaming         msgKey = "streaming_unsupported"
	msgInternal          msgKey = "internal"
)

// messages holds the Arabic and English text for every key.
var messages = map[msgKey][2]string{
	msgInvalidBody:       {"صيغة الطلب غير صالحة.", "Invalid request body."},
	msgInvalidInput:      {"البيانات المدخلة غير صالحة.", "The submitted data is invalid."},
	msgAuthRequired:      {"يجب تسجيل الدخول.", "Authorization required."},
	msgSessionExpired:    {"انتهت الجلسة، الرجاء تسجيل الدخول مرة أخرى.", "Your session has expired, please sign in again."},
	msgCSRF:              {"رمز الحماية غير صالح، الرجاء تحديث الصفحة.", "Invalid security token, please refresh the page."},
	msgInvalidCreds:      {"البريد الإلكتروني أو كلمة المرور غير صحيحة.", "Invalid email or password."},
	msgEmailTaken:        {"البريد الإلكتروني مستخدم بالفعل.", "This email is already registered."},
	msgInvalidEmail:      {"البريد الإلكتروني غير صالح.", "Invalid email address."},
	msgWeakPassword:      {"كلمة المرور قصيرة جدًا.", "Password is too short."},
	msgUserNotFound:      {"المستخدم غير موجود.", "User not found."},
	msgContentRequired:   {"الرجاء إدخال نص أو رفع ملف لتوليد الأسئلة.", "Please enter text or upload a file to generate questions."},
	msgFileTooLarge:      {"الرجاء اختيار ملف أصغر من 4 ميجابايت.", "Please choose a file smaller than 4MB."},
	msgUnsupportedType:   {"الرجاء اختيار ملف صورة أو PDF فقط.", "Please select an image or PDF file only."},
	msgEmptyFile:         {"الملف فارغ.", "The file is empty."},
	msgNoFiles:           {"الرجاء اختيار ملف واحد على الأقل.", "Please select at least one file."},
	msgFileNotFound:      {"الملف غير موجود.", "File not found."},
	msgPermissionDenied:  {"تم رفض حفظ بيانات الملف.", "Saving the file details was refused."},
	msgStorageFailed:     {"فشل التخزين، الرجاء المحاولة مرة أخرى.", "Storage failed, please try again."},
	msgAIFailed:          {"فشل الاتصال بمساعد الذكاء الاصطناعي.", "Failed to connect to the AI assistant."},
	msgBusy:              {"الخادم مشغول، الرجاء المحاولة لاحقًا.", "Server is busy, please retry."},
	msgRateLimited:       {"طلبات كثيرة جدًا، الرجاء الانتظار قليلًا.", "Too many requests, please slow down."},
	msgUnavailable:       {"الخدمة غير متاحة حاليًا.", "Service unavailable."},
	msgQuizNotFound:      {"الاختبار غير موجود.", "Quiz not found."},
	msgQuizState:         {"لا يمكن تنفيذ هذا الإجراء في الحالة الحالية للاختبار.", "This action is not allowed in the current quiz state."},
	msgQuizIncomplete:    {"الرجاء الإجابة على جميع الأسئلة أولًا.", "Please answer every question first."},
	msgQuizRange:         {"رقم السؤال أو الخيار غير صالح.", "Question or option index is out of range."},
	msgNoQuestions:       {"لم يتمكن الذكاء الاصطناعي من توليد أسئلة من المحتوى المقدم.", "The AI could not generate questions from the provided content."},
	msgNoImages:          {"الرجاء اختيار صورة واحدة على الأقل.", "Please select at least one image."},
	msgPDFNameRequired:   {"الرجاء إدخال اسم لملف PDF.", "Please enter a name for the PDF file."},
	msgImageDecode:       {"تعذر قراءة إحدى الصور.", "One of the images could not be read."},
	msgNothingToExport:   {"لا يوجد نص للتصدير.", "There is nothing to export."},
	msgPDFFontMissing:    {"تصدير PDF غير متاح على هذا الخادم، استخدم تصدير النص.", "PDF export is not available on this server. Use text export instead."},
	msgTooManyImages:     {"عدد الصور كبير جداً.", "Too many images were selected."},
	msgRecordingRequired: {"الرجاء إدخال اسم للتسجيل وتسجيل مقطع صوتي.", "Please enter a recording name and record some audio."},
	msgStreaming:         {"البث غير مدعوم.", "Streaming not supported."},
	msgInternal:          {"عذراً، حدث خطأ أثناء معالجة طلبك.", "Sorry, an error occurred while processing your request."},
}

func message(lang flows.Language, key msgKey) string {
	m, ok := messages[key]
	if !ok {
		m = messages[msgInternal]
	}
	if lang == flows.LanguageEnglish {
		return m[1]
	}
	return m[0]
}

// requestLanguage picks the response language: an explicit value first, then
// the lang query or form field, then Accept-Language. Arabic is the default.
func requestLanguage(c *gin.Context, explicit ...string) flows.Language {
	candidates := append(append([]string{}, explicit...), c.Query("lang"))
	if strings.HasPrefix(c.ContentType(), "multipart/") || strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") {
		candidates = append(candidates, c.PostForm("lang"))
	}
	for _, raw := range candidates {
		if lang, ok := knownLanguage(raw); ok {
			return lang
		}
	}
	for _, part := range strings.Split(c.GetHeader("Accept-Language"), ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		base, _, _ := strings.Cut(tag, "-")
		if lang, ok := knownLanguage(base); ok {
			return lang
		}
	}
	return flows.LanguageArabic
}

func knownLanguage(raw string) (flows.Language, bool) {
	switch flows.Language(strings.ToLower(strings.TrimSpace(raw))) {
	case flows.LanguageArabic:
		return flows.LanguageArabic, true
	case flows.LanguageEnglish:
		return flows.LanguageEnglish, true
	}
	return "", false
}

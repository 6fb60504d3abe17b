package dialogue

import (
	"fmt"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"

	"github.com/hamyarlab/yadavar/internal/recur"
)

// User-facing copy. All strings are Persian; placeholders are filled with
// fmt.Sprintf.
const (
	msgWelcome = "سلام! من یک ربات یادآور هستم. برای تنظیم یادآور، کافیه بهم بگی. مثلا: «یادم بنداز فردا ساعت ۱۰ صبح به علی زنگ بزنم» یا «جلسه تیم، دوشنبه ساعت ۳ بعد از ظهر»."

	msgHelp = `راهنما:
- برای تنظیم یادآور: فقط کافیه بهم بگی چی رو و کی بهت یادآوری کنم. مثلا:
  - "یادم بنداز فردا ساعت ۱۰ صبح به دوستم زنگ بزنم"
  - "جلسه پروژه، پس‌فردا ساعت ۳ بعد از ظهر"
  - "خرید هفتگی، جمعه ساعت ۱۱"
  - "یادم بنداز یک ساعت دیگه استراحت کنم"
- برای دیدن لیست یادآورهای فعال: دستور /list را بفرست یا بگو "یادآورهای من"
- برای حذف یادآور: از دکمه‌های زیر لیست یادآورها استفاده کن.
- برای لغو عملیات فعلی: بگو "لغو"
- برای ارتقا به نسخه حرفه‌ای: دستور /buy را ارسال کن.`

	msgCancelled   = "عملیات لغو شد."
	msgRequestTask = "چه کاری را می‌خواهی بهت یادآوری کنم؟"
	msgRequestFull = "باشه، چه زمانی بهت یادآوری کنم؟ (مثلاً: فردا ساعت ۱۰ صبح، یا ۲۵ اسفند ساعت ۱۵:۳۰)"
	msgRequestDate = "چه روزی بهت یادآوری کنم؟ (مثلاً: فردا، یا ۲۵ اسفند)"
	msgRequestTime = "ساعت چند؟"

	msgInvalidDateTime = "متاسفانه نتوانستم این تاریخ و زمان را متوجه شوم. لطفاً به شکل دیگری بیان کنید (مثلاً: فردا ساعت ۱۰ صبح، یا ۲۵ اسفند ساعت ۱۵:۳۰، یا ۳۰ دقیقه دیگه)."
	msgDateTimeInPast  = "این زمان در گذشته است! لطفاً یک زمان در آینده انتخاب کنید."
	msgInvalidAmPm     = "متوجه نشدم. لطفاً مشخص کنید صبح است یا بعد از ظهر (مثلاً با گفتن 'صبح' یا 'عصر')."
	msgNLUError        = "متاسفانه در درک منظور شما با سرویس زبان مشکلی پیش آمد. لطفاً کمی واضح‌تر بیان کنید یا بعداً تلاش کنید."
	msgExtractFailed   = "متأسفانه نتوانستم جزئیات یادآوری را از پیام شما دریافت کنم. لطفاً واضح‌تر بیان کنید چه زمانی و برای چه کاری نیاز به یادآوری دارید."
	msgGeneralError    = "متأسفانه خطایی در سیستم رخ داد. لطفاً بعداً تلاش کنید."

	msgConfirmExpired = "این درخواست دیگر معتبر نیست. لطفاً یادآور را دوباره تنظیم کنید."

	msgListHeader        = "⏰ لیست یادآورهای فعال شما:"
	msgNoReminders       = "شما هیچ یادآور فعالی ندارید."
	msgReminderNotFound  = "یادآور مورد نظر برای انجام این عملیات یافت نشد یا دیگر فعال نیست."
	msgSelectForDelete   = "کدام یادآور را می‌خواهید حذف کنید؟"
	msgDeleteCancelled   = "حذف لغو شد."
	msgVoiceUnrecognized = "متاسفانه نتوانستم صحبت شما را متوجه شوم. لطفاً واضح‌تر صحبت کنید یا تایپ کنید."

	msgLimitReached = "شما به سقف %d یادآور فعال رسیده‌اید. برای یادآور نامحدود، با دستور /buy به نسخه حرفه‌ای ارتقا پیدا کنید. 👑"

	msgPaymentPrompt    = "💎 برای ارتقا به نسخه حرفه‌ای و یادآور نامحدود، می‌توانید با پرداخت %s تومان اشتراک ۳۰ روزه دریافت کنید:\n%s"
	msgPaymentVerifyHow = "پس از پرداخت، کد پیگیری را با دستور /verify ارسال کنید."
	msgPaymentSuccess   = "✅ پرداخت شما با موفقیت انجام شد! اکنون شما کاربر ویژه هستید.\n\nاشتراک شما تا تاریخ %s معتبر است."
	msgPaymentFailed    = "❌ پرداخت ناموفق بود. لطفاً دوباره تلاش کنید یا با پشتیبانی تماس بگیرید."
	msgPaymentError     = "⚠️ خطا در ارتباط با درگاه پرداخت. لطفاً بعداً دوباره تلاش کنید."
	msgAlreadyPremium   = "✨ شما در حال حاضر کاربر ویژه هستید! اشتراک شما تا تاریخ %s معتبر است."

	btnAccept = "✅ تایید"
	btnReject = "❌ لغو"
	btnDelete = "🗑 حذف"
)

var persianDigits = [10]rune{'۰', '۱', '۲', '۳', '۴', '۵', '۶', '۷', '۸', '۹'}

func toPersianDigits(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			out = append(out, persianDigits[r-'0'])
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

// formatJalali renders an instant as a Persian date and a clock string, in
// the user's timezone. Example: ("چهارشنبه، ۲۸ خرداد ۱۴۰۴", "۱۵:۳۰").
func formatJalali(t time.Time, loc *time.Location) (date, clock string) {
	local := t.In(loc)
	pt := ptime.New(local)
	date = toPersianDigits(fmt.Sprintf("%s، %d %s %d", pt.Weekday().String(), pt.Day(), pt.Month().String(), pt.Year()))
	clock = toPersianDigits(fmt.Sprintf("%02d:%02d", local.Hour(), local.Minute()))
	return date, clock
}

func recurrenceLabel(r recur.Rule) string {
	switch r {
	case recur.Daily:
		return "روزانه"
	case recur.Weekly:
		return "هفتگی"
	case recur.Monthly:
		return "ماهانه"
	default:
		return ""
	}
}

// confirmPrompt is the staged-reminder summary the user accepts or rejects.
func confirmPrompt(task string, due time.Time, rule recur.Rule, loc *time.Location) string {
	date, clock := formatJalali(due, loc)
	if rule.Recurring() {
		return fmt.Sprintf("حتماً. یادآوری %s تنظیم می‌شود.\n📝 متن: %s\n⏰ اولین زمان: %s، ساعت %s\nتایید می‌کنید؟",
			recurrenceLabel(rule), task, date, clock)
	}
	return fmt.Sprintf("باشه، یادآوری تنظیم می‌شود.\n📝 متن: %s\n⏰ زمان: %s، ساعت %s\nتایید می‌کنید؟", task, date, clock)
}

// committedMessage confirms a stored reminder, mirroring confirmPrompt.
func committedMessage(task string, due time.Time, rule recur.Rule, loc *time.Location) string {
	date, clock := formatJalali(due, loc)
	rec := ""
	if rule.Recurring() {
		rec = fmt.Sprintf(" (تکرار: %s)", recurrenceLabel(rule))
	}
	return fmt.Sprintf("باشه، یادآوری تنظیم شد.\n📝 متن: %s\n⏰ زمان: %s، ساعت %s%s", task, date, clock, rec)
}

func askMeridiem(hour int) string {
	return fmt.Sprintf("ساعت %s صبح یا بعد از ظهر؟ (مثلاً: ۱۰ صبح، یا ۲ ظهر)", toPersianDigits(fmt.Sprintf("%d", hour)))
}

func deletedMessage(task string) string {
	return fmt.Sprintf("یادآور «%s» حذف شد.", task)
}

func listEntry(index int, task string, due time.Time, rule recur.Rule, loc *time.Location) string {
	date, clock := formatJalali(due, loc)
	rec := ""
	if rule.Recurring() {
		rec = fmt.Sprintf(" (تکرار: %s)", recurrenceLabel(rule))
	}
	return fmt.Sprintf("%s. 📝 %s\n   ⏰ %s، ساعت %s%s", toPersianDigits(fmt.Sprintf("%d", index)), task, date, clock, rec)
}

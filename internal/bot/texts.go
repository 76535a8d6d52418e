package bot

import kit "lxpbot/internal/transport"

// MainKeyboard is the persistent reply keyboard.
var MainKeyboard = kit.Keyboard{
	{"/tasks", "/notifications", "/reminder"},
	{"/stopreminder", "/logout", "/dev"},
}

const welcomeSticker = "CAACAgIAAxkBAAIFRWjzt4yzrBa0-6811vqAIWoTSXf_AAKFiwACxciYSxj7I6YrZSrwNgQ"

const (
	msgWelcome = `Добро пожаловать в IThub Helper!

Этот бот поможет вам:
- Следить за дедлайнами заданий
- Получать своевременные уведомления
- Не пропускать важные сроки сдачи
- Настраивать мини-напоминания чтобы не пропускать задачи

Для начала работы введите ваш email от образовательной платформы IThub:`

	msgInstructions = `Инструкция по работе с ботом:

/start - Авторизация на платформе (ввод email и пароля).
/tasks - Проверить текущие сроки заданий.
/notifications - Ваши уведомления о заданиях.
/reminder - Настроить ежедневные напоминания о дедлайнах.
/stopreminder - Отключить ежедневные напоминания.
/dev - Информация о создателе бота.
/logout - Выйти из системы и удалить данные.
/help - Показать эту инструкцию снова.

Используйте кнопки ниже или начните с команды /tasks!`

	msgAbout = `IThub Helper - Помощник для студентов

Создатель:
Имя: Ахмед
Telegram: @DevAhmed1
GitHub: <a href="https://github.com/AhmedLyanov">https://github.com/AhmedLyanov</a>

Техническая информация:
Платформа: IThub Colleges
Назначение: Уведомления о дедлайнах заданий

По вопросам сотрудничества и предложениям пишите автору!`

	msgNotAuthorized      = "Вы не авторизованы. Введите /start для начала работы."
	msgNotAuthorizedLock  = "🔐 Вы не авторизованы. Введите /start для начала работы."
	msgLogoutNotLoggedIn  = "Вы не авторизованы. Используйте /start для входа."
	msgLoggedOut          = "Вы вышли из системы. Все ваши данные и настройки напоминаний удалены.\n\nДля входа снова используйте /start."
	msgSessionExpired     = "🔐 Ваша сессия истекла. Пожалуйста, авторизуйтесь снова с помощью /start."
	msgSessionAuthFailure = "🔐 Ваша сессия истекла из-за ошибки авторизации. Пожалуйста, авторизуйтесь снова с помощью /start."

	msgBadIdentifier = "Неверный формат email. Пожалуйста, введите корректный email от образовательной платформы IThub:"
	msgAskSecret     = "Теперь введите ваш пароль:\n\nБезопасность: пароль используется только для получения и обновления токена доступа."
	msgShortSecret   = "Пароль слишком короткий. Пожалуйста, введите корректный пароль:"
	msgChecking      = "Проверяем ваши данные..."
	msgLoggedIn      = "Вы успешно авторизованы!\n\nТеперь вы можете использовать все функции бота."
	msgLoginFailed   = "Ошибка авторизации. "
	msgBadPassword   = "Неверный email или пароль."
	msgStartOver     = "\n\nПожалуйста, начните заново с команды /start."

	msgAskReminder       = "Введите время для ежедневных напоминаний в формате HH:MM (например, 14:30):\n\nБот будет проверять дедлайны каждый день в указанное время и присылать уведомления."
	msgBadReminderTime   = "Неверный формат времени. Пожалуйста, введите время в формате HH:MM (например, 09:30 или 14:45):"
	msgReminderSetFormat = "Ежедневные напоминания настроены на %s\n\nБот будет проверять дедлайны каждый день в это время и присылать уведомления.\n\nИспользуйте /stopreminder для отключения напоминаний."
	msgReminderStopped   = "Ежедневные напоминания отключены. Вы больше не будете получать автоматические уведомления."
	msgReminderNone      = "Напоминания не были настроены. Используйте /reminder чтобы настроить их."

	msgLoadingTasks         = "Загружаю информацию о заданиях..."
	msgNoDeadlines          = "✅ На данный момент сроков нет. Проверьте сайт платформы."
	msgLoadingNotifications = "Загружаю уведомления о заданиях..."
	msgNoNotifications      = "На данный момент у вас нет уведомлений о заданиях."
	msgNotificationsFailed  = "Ошибка загрузки уведомлений: %s"

	msgUnknownInput = "Я не понимаю эту команду. Используйте /help для просмотра доступных команд."
	msgUnexpected   = "Произошла непредвиденная ошибка. Пожалуйста, попробуйте позже или используйте /help для справки."
	msgOverloaded   = "⏳ Бот сейчас перегружен. Пожалуйста, повторите запрос через несколько секунд."
)

package checkout

import "github.com/luikyv/franchise-checkout/internal/errorutil"

// Messages are surfaced verbatim to the payer.
var (
	ErrInvalidLink         = errorutil.New("Link de pagamento inválido ou expirado")
	ErrSubscriptionMissing = errorutil.New("Assinatura não encontrada")
	ErrPlanMissing         = errorutil.New("Plano não encontrado")
	ErrGatewayRefsMissing  = errorutil.New("Configuração incompleta: a assinatura não possui cliente ou plano cadastrado na Vindi")
	ErrProductMissing      = errorutil.New("Configuração incompleta: o plano não possui produto cadastrado na Vindi")
	ErrInvalidAmount       = errorutil.New("Valor do plano inválido: o valor deve ser maior que zero")
	ErrPIXNotConfigured    = errorutil.New("Nenhum método de pagamento PIX configurado na Vindi")
	ErrPIXAddress          = errorutil.New("Erro crítico PIX: não foi possível atualizar o endereço do cliente na Vindi")
	ErrSubscriptionCreate  = errorutil.New("Erro ao criar assinatura na Vindi")
	ErrPaymentProfile      = errorutil.New("Erro ao cadastrar o cartão na Vindi")
	ErrBillSearch          = errorutil.New("Erro ao consultar faturas pendentes na Vindi")
	ErrBillCreate          = errorutil.New("Erro ao criar fatura na Vindi")
	ErrBillUpdate          = errorutil.New("Erro ao atualizar a fatura pendente na Vindi")
	ErrPaymentMethods      = errorutil.New("Erro ao consultar métodos de pagamento na Vindi")
	ErrPaymentInProgress   = errorutil.New("Pagamento já está em processamento para esta assinatura")
	ErrInvalidRequest      = errorutil.New("Requisição inválida")
	ErrNotFound            = errorutil.New("resource not found")
)

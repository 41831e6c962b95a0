package types

import (
	"testing"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type schemaField struct {
	name     string
	num      int32
	kind     descriptorpb.FieldDescriptorProto_Type
	optional bool
	repeated bool
	typeName string
}

func schemaMessage(name string, fields ...schemaField) *descriptorpb.DescriptorProto {
	msg := &descriptorpb.DescriptorProto{Name: proto.String(name)}
	for _, f := range fields {
		fd := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(f.name),
			Number: proto.Int32(f.num),
			Type:   f.kind.Enum(),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		}
		if f.repeated {
			fd.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
		}
		if f.typeName != "" {
			fd.TypeName = proto.String(".payments." + f.typeName)
		}
		if f.optional {
			fd.Proto3Optional = proto.Bool(true)
			fd.OneofIndex = proto.Int32(int32(len(msg.OneofDecl)))
			msg.OneofDecl = append(msg.OneofDecl, &descriptorpb.OneofDescriptorProto{Name: proto.String("_" + f.name)})
		}
		msg.Field = append(msg.Field, fd)
	}
	return msg
}

// paymentsSchema mirrors proto/payments.proto for the messages exercised below.
func paymentsSchema(t *testing.T) protoreflect.FileDescriptor {
	t.Helper()
	const (
		str   = descriptorpb.FieldDescriptorProto_TYPE_STRING
		i64   = descriptorpb.FieldDescriptorProto_TYPE_INT64
		i32   = descriptorpb.FieldDescriptorProto_TYPE_INT32
		boolT = descriptorpb.FieldDescriptorProto_TYPE_BOOL
		msg   = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE
	)
	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("payments.proto"),
		Package: proto.String("payments"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			schemaMessage("CreatePaymentResponse",
				schemaField{name: "success", num: 1, kind: boolT},
				schemaField{name: "transaction_id", num: 2, kind: str},
				schemaField{name: "amount", num: 3, kind: i64},
				schemaField{name: "commission", num: 4, kind: i64},
				schemaField{name: "amount_credited", num: 5, kind: i64},
				schemaField{name: "provider", num: 6, kind: str},
				schemaField{name: "client_secret", num: 7, kind: str, optional: true},
				schemaField{name: "confirmation_url", num: 8, kind: str, optional: true},
				schemaField{name: "provider_payment_intent_id", num: 9, kind: str, optional: true},
				schemaField{name: "status", num: 10, kind: str},
				schemaField{name: "message", num: 11, kind: str},
			),
			schemaMessage("ListTransactionsRequest",
				schemaField{name: "user_id", num: 1, kind: str},
				schemaField{name: "wallet_id", num: 2, kind: str},
				schemaField{name: "status", num: 3, kind: str},
				schemaField{name: "provider", num: 4, kind: str},
				schemaField{name: "limit", num: 5, kind: i32},
				schemaField{name: "offset", num: 6, kind: i32},
			),
			schemaMessage("Transaction",
				schemaField{name: "id", num: 1, kind: str},
				schemaField{name: "wallet_id", num: 2, kind: str},
				schemaField{name: "user_id", num: 3, kind: str},
				schemaField{name: "amount", num: 4, kind: i64},
				schemaField{name: "commission", num: 5, kind: i64},
				schemaField{name: "commission_percent", num: 6, kind: str},
				schemaField{name: "amount_credited", num: 7, kind: i64},
				schemaField{name: "transaction_type", num: 8, kind: str},
				schemaField{name: "provider", num: 9, kind: str},
				schemaField{name: "provider_payment_intent_id", num: 10, kind: str, optional: true},
				schemaField{name: "payment_method_id", num: 11, kind: str, optional: true},
				schemaField{name: "status", num: 12, kind: str},
				schemaField{name: "error_code", num: 13, kind: str, optional: true},
				schemaField{name: "error_message", num: 14, kind: str, optional: true},
				schemaField{name: "client_secret", num: 15, kind: str, optional: true},
				schemaField{name: "confirmation_url", num: 16, kind: str, optional: true},
				schemaField{name: "created_at", num: 17, kind: str},
				schemaField{name: "updated_at", num: 18, kind: str},
				schemaField{name: "completed_at", num: 19, kind: str, optional: true},
			),
			schemaMessage("ListTransactionsResponse",
				schemaField{name: "transactions", num: 1, kind: msg, repeated: true, typeName: "Transaction"},
			),
		},
	}
	fd, err := protodesc.NewFile(file, nil)
	if err != nil {
		t.Fatalf("build payments schema: %v", err)
	}
	return fd
}

func TestCodecIsRegisteredAsDefault(t *testing.T) {
	if _, ok := encoding.GetCodec("proto").(wireCodec); !ok {
		t.Fatalf("expected wireCodec registered as %q, got %T", CodecName, encoding.GetCodec("proto"))
	}
}

func TestCodecEncodesCreatePaymentResponseForProtobufClients(t *testing.T) {
	md := paymentsSchema(t).Messages().ByName("CreatePaymentResponse")
	empty := ""
	intent := "pi_1"

	raw, err := wireCodec{}.Marshal(&CreatePaymentResponse{
		Success:                 true,
		TransactionId:           "tx-1",
		Amount:                  1000,
		Commission:              70,
		AmountCredited:          930,
		Provider:                "stripe",
		ClientSecret:            &empty,
		ProviderPaymentIntentId: &intent,
		Status:                  "pending",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(raw, decoded); err != nil {
		t.Fatalf("protobuf unmarshal: %v", err)
	}
	fields := md.Fields()
	if !decoded.Get(fields.ByName("success")).Bool() {
		t.Fatal("expected success")
	}
	if got := decoded.Get(fields.ByName("transaction_id")).String(); got != "tx-1" {
		t.Fatalf("unexpected transaction_id %q", got)
	}
	if got := decoded.Get(fields.ByName("amount_credited")).Int(); got != 930 {
		t.Fatalf("unexpected amount_credited %d", got)
	}
	if !decoded.Has(fields.ByName("client_secret")) {
		t.Fatal("expected an explicitly empty client_secret to stay present")
	}
	if decoded.Has(fields.ByName("confirmation_url")) {
		t.Fatal("expected confirmation_url to be absent")
	}
	if got := decoded.Get(fields.ByName("provider_payment_intent_id")).String(); got != "pi_1" {
		t.Fatalf("unexpected provider_payment_intent_id %q", got)
	}
	if decoded.Has(fields.ByName("message")) {
		t.Fatal("expected empty message to be omitted")
	}
}

func TestCodecDecodesProtobufListResponse(t *testing.T) {
	schema := paymentsSchema(t)
	listMD := schema.Messages().ByName("ListTransactionsResponse")
	txMD := schema.Messages().ByName("Transaction")

	list := dynamicpb.NewMessage(listMD)
	items := list.Mutable(listMD.Fields().ByName("transactions")).List()

	first := dynamicpb.NewMessage(txMD)
	first.Set(txMD.Fields().ByName("id"), protoreflect.ValueOfString("tx-1"))
	first.Set(txMD.Fields().ByName("amount"), protoreflect.ValueOfInt64(1000))
	first.Set(txMD.Fields().ByName("status"), protoreflect.ValueOfString("completed"))
	first.Set(txMD.Fields().ByName("completed_at"), protoreflect.ValueOfString("2026-01-01T00:00:00Z"))
	items.Append(protoreflect.ValueOfMessage(first))

	second := dynamicpb.NewMessage(txMD)
	second.Set(txMD.Fields().ByName("id"), protoreflect.ValueOfString("tx-2"))
	second.Set(txMD.Fields().ByName("error_code"), protoreflect.ValueOfString(""))
	items.Append(protoreflect.ValueOfMessage(second))

	raw, err := proto.Marshal(list)
	if err != nil {
		t.Fatalf("protobuf marshal: %v", err)
	}

	var out ListTransactionsResponse
	if err := (wireCodec{}).Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(out.Transactions))
	}
	got := out.Transactions[0]
	if got.Id != "tx-1" || got.Amount != 1000 || got.Status != "completed" {
		t.Fatalf("unexpected first transaction: %+v", got)
	}
	if got.CompletedAt == nil || *got.CompletedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected completedAt: %v", got.CompletedAt)
	}
	if got.ErrorCode != nil {
		t.Fatalf("expected no error code, got %q", *got.ErrorCode)
	}
	if out.Transactions[1].ErrorCode == nil || *out.Transactions[1].ErrorCode != "" {
		t.Fatalf("expected present empty error code, got %v", out.Transactions[1].ErrorCode)
	}
	if out.Transactions[1].CompletedAt != nil {
		t.Fatal("expected absent completedAt on the second transaction")
	}
}

func TestCodecKeepsNegativeInt32AndSkipsUnknownFields(t *testing.T) {
	md := paymentsSchema(t).Messages().ByName("ListTransactionsRequest")

	raw, err := wireCodec{}.Marshal(&ListTransactionsRequest{WalletId: "w-1", Limit: 50, Offset: -1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(raw, decoded); err != nil {
		t.Fatalf("protobuf unmarshal: %v", err)
	}
	if got := decoded.Get(md.Fields().ByName("offset")).Int(); got != -1 {
		t.Fatalf("expected offset -1, got %d", got)
	}

	raw = protowire.AppendTag(raw, 99, protowire.BytesType)
	raw = protowire.AppendString(raw, "added in a later schema")
	var out ListTransactionsRequest
	if err := (wireCodec{}).Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal with unknown field: %v", err)
	}
	if out.WalletId != "w-1" || out.Limit != 50 || out.Offset != -1 {
		t.Fatalf("unexpected request: %+v", out)
	}
}

func TestCodecRejectsMalformedInput(t *testing.T) {
	var out CreatePaymentRequest
	truncated := protowire.AppendTag(nil, 2, protowire.BytesType)
	truncated = protowire.AppendVarint(truncated, 10)
	if err := (wireCodec{}).Unmarshal(append(truncated, 'w'), &out); err == nil {
		t.Fatal("expected truncated string to fail")
	}

	wrongType := protowire.AppendTag(nil, 3, protowire.BytesType)
	wrongType = protowire.AppendString(wrongType, "1000")
	if err := (wireCodec{}).Unmarshal(wrongType, &out); err == nil {
		t.Fatal("expected wire type mismatch to fail")
	}

	if _, err := (wireCodec{}).Marshal(struct{}{}); err == nil {
		t.Fatal("expected unsupported type to fail")
	}
}

func TestCodecPassesThroughProtoMessages(t *testing.T) {
	raw, err := wireCodec{}.Marshal(wrapperspb.String("SERVING"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out := &wrapperspb.StringValue{}
	if err := (wireCodec{}).Unmarshal(raw, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GetValue() != "SERVING" {
		t.Fatalf("unexpected value %q", out.GetValue())
	}
}
